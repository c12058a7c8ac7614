package hal

import (
	"context"
	"fmt"

	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/parcel"
)

// Operation codes, in declaration order of the interface.
const (
	opGetPowerEntityInfo    = ipc.FirstCall
	opGetStateResidency     = ipc.FirstCall + 1
	opGetEnergyConsumerInfo = ipc.FirstCall + 2
	opGetEnergyConsumed     = ipc.FirstCall + 3
	opGetEnergyMeterInfo    = ipc.FirstCall + 4
	opReadEnergyMeter       = ipc.FirstCall + 5
)

// Service is the power stats HAL contract. The client proxy and the
// in-process mock both satisfy it, so callers and tests are wired the
// same way.
//
// For the filtered calls an empty or nil id slice selects everything;
// results come back in the order the ids were requested.
type Service interface {
	GetPowerEntityInfo(ctx context.Context) ([]PowerEntity, error)
	GetStateResidency(ctx context.Context, entityIDs []int32) ([]StateResidencyResult, error)
	GetEnergyConsumerInfo(ctx context.Context) ([]EnergyConsumer, error)
	GetEnergyConsumed(ctx context.Context, consumerIDs []int32) ([]EnergyConsumerResult, error)
	GetEnergyMeterInfo(ctx context.Context) ([]Channel, error)
	ReadEnergyMeter(ctx context.Context, channelIDs []int32) ([]EnergyMeasurement, error)
}

// Client is the remote proxy for a power stats HAL instance.
type Client struct {
	conn   *ipc.Conn
	handle ipc.Handle
}

var _ Service = (*Client)(nil)

// Connect resolves the default HAL instance on the hub.
func Connect(ctx context.Context, conn *ipc.Conn) (*Client, error) {
	handle, err := conn.GetService(ctx, Instance)
	if err != nil {
		return nil, fmt.Errorf("hal: connect %s: %w", Instance, err)
	}
	return &Client{conn: conn, handle: handle}, nil
}

// NewClient wraps an already resolved service handle.
func NewClient(conn *ipc.Conn, handle ipc.Handle) *Client {
	return &Client{conn: conn, handle: handle}
}

func (c *Client) request() *parcel.Writer {
	w := parcel.NewWriter()
	w.WriteString16(Descriptor)
	return w
}

func (c *Client) GetPowerEntityInfo(ctx context.Context) ([]PowerEntity, error) {
	r, err := c.conn.Transact(ctx, c.handle, opGetPowerEntityInfo, c.request())
	if err != nil {
		return nil, fmt.Errorf("hal: power entity info: %w", err)
	}
	ents, err := readPowerEntities(r)
	if err != nil {
		return nil, fmt.Errorf("hal: power entity info: %w", err)
	}
	return ents, nil
}

func (c *Client) GetStateResidency(ctx context.Context, entityIDs []int32) ([]StateResidencyResult, error) {
	w := c.request()
	w.WriteInt32Vector(entityIDs)
	r, err := c.conn.Transact(ctx, c.handle, opGetStateResidency, w)
	if err != nil {
		return nil, fmt.Errorf("hal: state residency: %w", err)
	}
	results, err := readStateResidencyResults(r)
	if err != nil {
		return nil, fmt.Errorf("hal: state residency: %w", err)
	}
	return results, nil
}

func (c *Client) GetEnergyConsumerInfo(ctx context.Context) ([]EnergyConsumer, error) {
	r, err := c.conn.Transact(ctx, c.handle, opGetEnergyConsumerInfo, c.request())
	if err != nil {
		return nil, fmt.Errorf("hal: energy consumer info: %w", err)
	}
	cons, err := readEnergyConsumers(r)
	if err != nil {
		return nil, fmt.Errorf("hal: energy consumer info: %w", err)
	}
	return cons, nil
}

func (c *Client) GetEnergyConsumed(ctx context.Context, consumerIDs []int32) ([]EnergyConsumerResult, error) {
	w := c.request()
	w.WriteInt32Vector(consumerIDs)
	r, err := c.conn.Transact(ctx, c.handle, opGetEnergyConsumed, w)
	if err != nil {
		return nil, fmt.Errorf("hal: energy consumed: %w", err)
	}
	results, err := readEnergyConsumerResults(r)
	if err != nil {
		return nil, fmt.Errorf("hal: energy consumed: %w", err)
	}
	return results, nil
}

func (c *Client) GetEnergyMeterInfo(ctx context.Context) ([]Channel, error) {
	r, err := c.conn.Transact(ctx, c.handle, opGetEnergyMeterInfo, c.request())
	if err != nil {
		return nil, fmt.Errorf("hal: energy meter info: %w", err)
	}
	chans, err := readChannels(r)
	if err != nil {
		return nil, fmt.Errorf("hal: energy meter info: %w", err)
	}
	return chans, nil
}

func (c *Client) ReadEnergyMeter(ctx context.Context, channelIDs []int32) ([]EnergyMeasurement, error) {
	w := c.request()
	w.WriteInt32Vector(channelIDs)
	r, err := c.conn.Transact(ctx, c.handle, opReadEnergyMeter, w)
	if err != nil {
		return nil, fmt.Errorf("hal: read energy meter: %w", err)
	}
	meas, err := readEnergyMeasurements(r)
	if err != nil {
		return nil, fmt.Errorf("hal: read energy meter: %w", err)
	}
	return meas, nil
}
