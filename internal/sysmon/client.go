package sysmon

import (
	"context"
	"errors"
	"fmt"

	"github.com/railmon/powerstats/internal/bundle"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/parcel"
)

// Client is the remote proxy for the system power monitor service.
//
// Each call registers a one-shot receiver object, fires the oneway
// request with the receiver's handle attached, and waits for the
// service to call back. A service that fails internally never calls the
// receiver, so the context deadline bounds the wait.
type Client struct {
	conn   *ipc.Conn
	handle ipc.Handle
}

// Connect resolves the system service on the hub.
func Connect(ctx context.Context, conn *ipc.Conn) (*Client, error) {
	handle, err := conn.GetService(ctx, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("sysmon: connect %s: %w", ServiceName, err)
	}
	return &Client{conn: conn, handle: handle}, nil
}

// NewClient wraps an already resolved service handle.
func NewClient(conn *ipc.Conn, handle ipc.Handle) *Client {
	return &Client{conn: conn, handle: handle}
}

type receiverResult struct {
	code int32
	data *bundle.Bundle
}

// resultReceiver is the one-shot callback sink. The channel is buffered
// so a late delivery after the caller gave up cannot wedge the
// connection's dispatch loop.
type resultReceiver struct {
	ch chan receiverResult
}

func newResultReceiver() *resultReceiver {
	return &resultReceiver{ch: make(chan receiverResult, 1)}
}

func (r *resultReceiver) Descriptor() string { return ReceiverDescriptor }

func (r *resultReceiver) Transact(_ context.Context, code uint32, in *parcel.Reader, _ *parcel.Writer) error {
	if code != receiverSend {
		return ipc.Errorf(ipc.CodeUnsupported, "receiver operation %d", code)
	}
	rc, err := in.Int32()
	if err != nil {
		return err
	}
	data, err := bundle.Read(in)
	if err != nil {
		return err
	}
	select {
	case r.ch <- receiverResult{code: rc, data: data}:
	default:
	}
	return nil
}

// call fires one oneway request and waits for the receiver callback.
func (c *Client) call(ctx context.Context, code uint32, fill func(w *parcel.Writer)) (*bundle.Bundle, error) {
	recv := newResultReceiver()
	h := c.conn.RegisterObject(recv)
	defer c.conn.UnregisterObject(h)

	w := parcel.NewWriter()
	w.WriteString16(Descriptor)
	if fill != nil {
		fill(w)
	}
	w.WriteObjectHandle(uint64(h))
	if err := c.conn.TransactOneway(ctx, c.handle, code, w); err != nil {
		return nil, err
	}

	select {
	case res := <-recv.ch:
		switch res.code {
		case resultSuccess:
			return res.data, nil
		case resultMonitorNotSupported:
			return nil, ErrUnsupportedMonitor
		default:
			return nil, fmt.Errorf("sysmon: unexpected result code %d", res.code)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("sysmon: awaiting result: %w", ctx.Err())
	}
}

// GetSupportedPowerMonitors fetches the service's monitor table.
func (c *Client) GetSupportedPowerMonitors(ctx context.Context) ([]PowerMonitor, error) {
	data, err := c.call(ctx, opGetSupportedPowerMonitors, nil)
	if err != nil {
		return nil, fmt.Errorf("sysmon: supported power monitors: %w", err)
	}
	items, ok := data.Parcelables(keyMonitors)
	if !ok {
		return nil, fmt.Errorf("sysmon: supported power monitors: result bundle lacks %q", keyMonitors)
	}
	monitors := make([]PowerMonitor, 0, len(items))
	for _, it := range items {
		m, ok := it.(PowerMonitor)
		if !ok {
			return nil, fmt.Errorf("sysmon: supported power monitors: unexpected element %T", it)
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

// GetPowerMonitorReadings samples the monitors named by index. The
// result arrays parallel the request order.
func (c *Client) GetPowerMonitorReadings(ctx context.Context, indices []int32) (Readings, error) {
	data, err := c.call(ctx, opGetPowerMonitorReadings, func(w *parcel.Writer) {
		w.WriteInt32Vector(indices)
	})
	if err != nil {
		if errors.Is(err, ErrUnsupportedMonitor) {
			return Readings{}, err
		}
		return Readings{}, fmt.Errorf("sysmon: power monitor readings: %w", err)
	}
	ts, ok := data.Longs(keyTimestamps)
	if !ok {
		return Readings{}, fmt.Errorf("sysmon: power monitor readings: result bundle lacks %q", keyTimestamps)
	}
	energy, ok := data.Longs(keyEnergy)
	if !ok {
		return Readings{}, fmt.Errorf("sysmon: power monitor readings: result bundle lacks %q", keyEnergy)
	}
	if len(ts) != len(energy) {
		return Readings{}, fmt.Errorf("sysmon: power monitor readings: %d timestamps vs %d energy values", len(ts), len(energy))
	}
	return Readings{TimestampsMs: ts, EnergyUWs: energy}, nil
}
