package sysmon

import (
	"context"
	"fmt"
	"strconv"

	"github.com/railmon/powerstats/internal/hal"
)

// MockService adapts a hal.Service into the monitor-table shape of the
// system service, the same projection the platform performs: energy
// consumers first, then meter channels, with indices assigned in that
// order. Meter durations are dropped; the system surface has no field
// for them.
type MockService struct {
	hal hal.Service
}

var _ Service = (*MockService)(nil)

// NewMockService wraps h, typically a hal.MockService.
func NewMockService(h hal.Service) *MockService {
	return &MockService{hal: h}
}

type monitorRef struct {
	monitor PowerMonitor
	backing int32 // consumer or channel id, per monitor type
}

func (m *MockService) table(ctx context.Context) ([]monitorRef, error) {
	consumers, err := m.hal.GetEnergyConsumerInfo(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := m.hal.GetEnergyMeterInfo(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]monitorRef, 0, len(consumers)+len(channels))
	idx := int32(0)
	for _, c := range consumers {
		refs = append(refs, monitorRef{
			monitor: PowerMonitor{Index: idx, Type: MonitorConsumer, Name: consumerMonitorName(c)},
			backing: c.ID,
		})
		idx++
	}
	for _, ch := range channels {
		refs = append(refs, monitorRef{
			monitor: PowerMonitor{Index: idx, Type: MonitorMeasurement, Name: "[" + ch.Name + "]:" + ch.Subsystem},
			backing: ch.ID,
		})
		idx++
	}
	return refs, nil
}

// consumerMonitorName renders the platform's monitor naming: the
// consumer type's service name, CPU clusters shortened to "CPU",
// untyped consumers keeping their raw name, with "/ordinal" appended
// for ordinals above zero.
func consumerMonitorName(c hal.EnergyConsumer) string {
	var name string
	switch c.Type {
	case hal.EnergyConsumerCPUCluster:
		name = "CPU"
	case hal.EnergyConsumerOther:
		name = c.Name
	default:
		name = c.Type.String()
	}
	if c.Ordinal != 0 {
		name += "/" + strconv.Itoa(int(c.Ordinal))
	}
	return name
}

func (m *MockService) GetSupportedPowerMonitors(ctx context.Context) ([]PowerMonitor, error) {
	refs, err := m.table(ctx)
	if err != nil {
		return nil, err
	}
	monitors := make([]PowerMonitor, len(refs))
	for i, ref := range refs {
		monitors[i] = ref.monitor
	}
	return monitors, nil
}

func (m *MockService) GetPowerMonitorReadings(ctx context.Context, indices []int32) (Readings, error) {
	refs, err := m.table(ctx)
	if err != nil {
		return Readings{}, err
	}
	if len(indices) == 0 {
		indices = make([]int32, len(refs))
		for i := range refs {
			indices[i] = int32(i)
		}
	}

	// Split the request into the two backing calls, remembering where
	// each answer belongs.
	var (
		consumerIDs, channelIDs []int32
		consumerPos, channelPos []int
	)
	for pos, idx := range indices {
		if idx < 0 || int(idx) >= len(refs) {
			return Readings{}, fmt.Errorf("%w: index %d", ErrUnsupportedMonitor, idx)
		}
		ref := refs[idx]
		if ref.monitor.Type == MonitorConsumer {
			consumerIDs = append(consumerIDs, ref.backing)
			consumerPos = append(consumerPos, pos)
		} else {
			channelIDs = append(channelIDs, ref.backing)
			channelPos = append(channelPos, pos)
		}
	}

	out := Readings{
		TimestampsMs: make([]int64, len(indices)),
		EnergyUWs:    make([]int64, len(indices)),
	}
	if len(consumerIDs) > 0 {
		results, err := m.hal.GetEnergyConsumed(ctx, consumerIDs)
		if err != nil {
			return Readings{}, err
		}
		if len(results) != len(consumerIDs) {
			return Readings{}, fmt.Errorf("sysmon: %d consumer results for %d ids", len(results), len(consumerIDs))
		}
		for i, res := range results {
			out.TimestampsMs[consumerPos[i]] = res.TimestampMs
			out.EnergyUWs[consumerPos[i]] = res.EnergyUWs
		}
	}
	if len(channelIDs) > 0 {
		meas, err := m.hal.ReadEnergyMeter(ctx, channelIDs)
		if err != nil {
			return Readings{}, err
		}
		if len(meas) != len(channelIDs) {
			return Readings{}, fmt.Errorf("sysmon: %d measurements for %d ids", len(meas), len(channelIDs))
		}
		for i, ms := range meas {
			out.TimestampsMs[channelPos[i]] = ms.TimestampMs
			out.EnergyUWs[channelPos[i]] = ms.EnergyUWs
		}
	}
	return out, nil
}
