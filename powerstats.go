// Package powerstats reads device power and energy telemetry from the
// service hub. It unifies two backends behind one API: the system
// power monitor service ("powerstats"), available to regular clients,
// and the vendor power stats HAL, which additionally exposes meter
// durations, per-UID attribution and power entity state residency.
//
// Connect dials the hub and prefers the system service, falling back
// to the vendor HAL; New does the same over a caller-owned connection.
// All readings are cumulative microwatt-seconds since device boot;
// consumers compute rates from successive samples.
package powerstats

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/railmon/powerstats/internal/hal"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/sysmon"
)

// Backend names a telemetry source.
type Backend string

const (
	// BackendSystemService is the system power monitor service.
	BackendSystemService Backend = "system"
	// BackendVendorHAL is the vendor power stats HAL.
	BackendVendorHAL Backend = "hal"
)

// systemService is the slice of sysmon.Client the facade needs; the
// sysmon mock satisfies it too.
type systemService interface {
	GetSupportedPowerMonitors(ctx context.Context) ([]sysmon.PowerMonitor, error)
	GetPowerMonitorReadings(ctx context.Context, indices []int32) (sysmon.Readings, error)
}

// PowerStats is the unified telemetry client. Exactly one backend is
// active; Backend reports which.
type PowerStats struct {
	backend Backend
	hal     hal.Service
	sys     systemService
	conn    *ipc.Conn // owned when built via Connect/ConnectBackend
	log     zerolog.Logger
}

// Connect dials the hub at addr (unix:// or tcp://) and binds the
// preferred backend like New. The returned client owns the
// connection; Close releases it.
func Connect(ctx context.Context, addr string) (*PowerStats, error) {
	conn, err := ipc.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("powerstats: connect %s: %w", addr, err)
	}
	ps, err := New(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	ps.conn = conn
	return ps, nil
}

// ConnectBackend dials the hub at addr and binds exactly the named
// backend. The returned client owns the connection.
func ConnectBackend(ctx context.Context, addr string, b Backend) (*PowerStats, error) {
	conn, err := ipc.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("powerstats: connect %s: %w", addr, err)
	}
	ps, err := NewWithBackend(ctx, conn, b)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	ps.conn = conn
	return ps, nil
}

// Close releases the hub connection when the client owns it. For
// clients built with New or NewWithBackend the caller keeps the
// connection and Close is a no-op.
func (p *PowerStats) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// New connects to the preferred available backend: the system service
// first, then the vendor HAL. Each failed attempt is logged as a
// warning; if both fail the error wraps ErrNoBackend.
func New(ctx context.Context, conn *ipc.Conn) (*PowerStats, error) {
	logger := log.WithComponent("powerstats")

	ps, sysErr := NewWithBackend(ctx, conn, BackendSystemService)
	if sysErr == nil {
		return ps, nil
	}
	logger.Warn().
		Str(log.FieldEvent, "powerstats.backend.fallback").
		Str(log.FieldService, sysmon.ServiceName).
		Err(sysErr).
		Msg("system service unavailable, trying vendor HAL")

	ps, halErr := NewWithBackend(ctx, conn, BackendVendorHAL)
	if halErr == nil {
		return ps, nil
	}
	logger.Warn().
		Str(log.FieldEvent, "powerstats.backend.unavailable").
		Str(log.FieldService, hal.Instance).
		Err(halErr).
		Msg("vendor HAL unavailable")

	return nil, fmt.Errorf("%w: system service: %v; vendor HAL: %v", ErrNoBackend, sysErr, halErr)
}

// NewWithBackend connects to exactly the named backend.
func NewWithBackend(ctx context.Context, conn *ipc.Conn, b Backend) (*PowerStats, error) {
	logger := log.WithComponent("powerstats")
	switch b {
	case BackendSystemService:
		client, err := sysmon.Connect(ctx, conn)
		if err != nil {
			return nil, err
		}
		return &PowerStats{backend: b, sys: client, log: logger}, nil
	case BackendVendorHAL:
		client, err := hal.Connect(ctx, conn)
		if err != nil {
			return nil, err
		}
		return &PowerStats{backend: b, hal: client, log: logger}, nil
	}
	return nil, fmt.Errorf("powerstats: unknown backend %q", b)
}

// Backend reports the active telemetry source.
func (p *PowerStats) Backend() Backend { return p.backend }

// EnergyMeters lists the individual measured rails. On the system
// backend these are the Measurement-type monitors; monitors with
// unparsable names are skipped with a warning.
func (p *PowerStats) EnergyMeters(ctx context.Context) ([]EnergyMeter, error) {
	switch p.backend {
	case BackendVendorHAL:
		channels, err := p.hal.GetEnergyMeterInfo(ctx)
		if err != nil {
			return nil, err
		}
		meters := make([]EnergyMeter, 0, len(channels))
		for _, c := range channels {
			meters = append(meters, meterFromChannel(c))
		}
		return meters, nil
	default:
		monitors, err := p.sys.GetSupportedPowerMonitors(ctx)
		if err != nil {
			return nil, err
		}
		var meters []EnergyMeter
		for _, m := range monitors {
			if m.Type != sysmon.MonitorMeasurement {
				continue
			}
			meter, ok := parseMeterMonitor(m)
			if !ok {
				p.log.Warn().
					Str(log.FieldEvent, "powerstats.monitor.malformed").
					Str(log.FieldMonitor, m.Name).
					Int32("index", m.Index).
					Msg("skipping measurement monitor with unparsable name")
				continue
			}
			meters = append(meters, meter)
		}
		return meters, nil
	}
}

// EnergyConsumers lists the aggregated consumers. On the system
// backend these are the Consumer-type monitors; names parse as
// "TYPE/ordinal" with unknown types kept as Other.
func (p *PowerStats) EnergyConsumers(ctx context.Context) ([]EnergyConsumer, error) {
	switch p.backend {
	case BackendVendorHAL:
		raw, err := p.hal.GetEnergyConsumerInfo(ctx)
		if err != nil {
			return nil, err
		}
		consumers := make([]EnergyConsumer, 0, len(raw))
		for _, c := range raw {
			consumers = append(consumers, consumerFromHAL(c))
		}
		return consumers, nil
	default:
		monitors, err := p.sys.GetSupportedPowerMonitors(ctx)
		if err != nil {
			return nil, err
		}
		var consumers []EnergyConsumer
		for _, m := range monitors {
			if m.Type != sysmon.MonitorConsumer {
				continue
			}
			consumer, ok := parseConsumerMonitor(m)
			if !ok {
				p.log.Warn().
					Str(log.FieldEvent, "powerstats.monitor.malformed").
					Str(log.FieldMonitor, m.Name).
					Int32("index", m.Index).
					Msg("skipping consumer monitor with unparsable name")
				continue
			}
			consumers = append(consumers, consumer)
		}
		return consumers, nil
	}
}

// ReadEnergyMeters samples the named meters; results follow the id
// order, and an empty id list samples everything the backend exposes.
// Durations are only populated on the vendor HAL.
func (p *PowerStats) ReadEnergyMeters(ctx context.Context, ids []int32) ([]EnergyMeterReading, error) {
	switch p.backend {
	case BackendVendorHAL:
		meas, err := p.hal.ReadEnergyMeter(ctx, ids)
		if err != nil {
			return nil, err
		}
		readings := make([]EnergyMeterReading, 0, len(meas))
		for _, m := range meas {
			readings = append(readings, readingFromMeasurement(m))
		}
		return readings, nil
	default:
		return p.readMonitors(ctx, ids)
	}
}

// ReadEnergyConsumers samples the named consumers; results follow the
// id order. Attribution is only populated on the vendor HAL.
func (p *PowerStats) ReadEnergyConsumers(ctx context.Context, ids []int32) ([]EnergyConsumerReading, error) {
	switch p.backend {
	case BackendVendorHAL:
		results, err := p.hal.GetEnergyConsumed(ctx, ids)
		if err != nil {
			return nil, err
		}
		readings := make([]EnergyConsumerReading, 0, len(results))
		for _, r := range results {
			readings = append(readings, readingFromConsumerResult(r))
		}
		return readings, nil
	default:
		meters, err := p.readMonitors(ctx, ids)
		if err != nil {
			return nil, err
		}
		readings := make([]EnergyConsumerReading, 0, len(meters))
		for _, m := range meters {
			readings = append(readings, EnergyConsumerReading{
				Timestamp: m.Timestamp,
				EnergyUWs: m.EnergyUWs,
			})
		}
		return readings, nil
	}
}

// readMonitors fetches system-backend readings as meter readings with
// no duration.
func (p *PowerStats) readMonitors(ctx context.Context, ids []int32) ([]EnergyMeterReading, error) {
	r, err := p.sys.GetPowerMonitorReadings(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(r.TimestampsMs) != len(r.EnergyUWs) {
		return nil, fmt.Errorf("powerstats: %d timestamps vs %d energy values", len(r.TimestampsMs), len(r.EnergyUWs))
	}
	readings := make([]EnergyMeterReading, len(r.TimestampsMs))
	for i := range r.TimestampsMs {
		readings[i] = EnergyMeterReading{
			Timestamp: timeDurationMs(r.TimestampsMs[i]),
			EnergyUWs: r.EnergyUWs[i],
		}
	}
	return readings, nil
}

// PowerEntities lists the platform power entities. Vendor HAL only; on
// the system backend the error wraps ErrNotSupported.
func (p *PowerStats) PowerEntities(ctx context.Context) ([]PowerEntity, error) {
	if p.backend != BackendVendorHAL {
		return nil, fmt.Errorf("%w: power entities require the vendor HAL", ErrNotSupported)
	}
	raw, err := p.hal.GetPowerEntityInfo(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]PowerEntity, 0, len(raw))
	for _, e := range raw {
		entities = append(entities, entityFromHAL(e))
	}
	return entities, nil
}

// StateResidency reads state residency for the named entities (empty =
// all). Vendor HAL only; on the system backend the error wraps
// ErrNotSupported.
func (p *PowerStats) StateResidency(ctx context.Context, entityIDs []int32) ([]StateResidencyResult, error) {
	if p.backend != BackendVendorHAL {
		return nil, fmt.Errorf("%w: state residency requires the vendor HAL", ErrNotSupported)
	}
	raw, err := p.hal.GetStateResidency(ctx, entityIDs)
	if err != nil {
		return nil, err
	}
	results := make([]StateResidencyResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, residencyFromHAL(r))
	}
	return results, nil
}
