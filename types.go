package powerstats

import (
	"fmt"
	"time"

	"github.com/railmon/powerstats/internal/hal"
)

// EnergyConsumerType classifies an aggregated energy consumer. The
// values mirror the vendor HAL's enum; on the system backend the type
// is recovered from the monitor name.
type EnergyConsumerType int32

const (
	ConsumerOther EnergyConsumerType = iota
	ConsumerBluetooth
	ConsumerCPUCluster
	ConsumerDisplay
	ConsumerGNSS
	ConsumerMobileRadio
	ConsumerWiFi
	ConsumerCamera
)

func (t EnergyConsumerType) String() string {
	switch t {
	case ConsumerOther:
		return "OTHER"
	case ConsumerBluetooth:
		return "BLUETOOTH"
	case ConsumerCPUCluster:
		return "CPU_CLUSTER"
	case ConsumerDisplay:
		return "DISPLAY"
	case ConsumerGNSS:
		return "GNSS"
	case ConsumerMobileRadio:
		return "MOBILE_RADIO"
	case ConsumerWiFi:
		return "WIFI"
	case ConsumerCamera:
		return "CAMERA"
	}
	return fmt.Sprintf("TYPE(%d)", int32(t))
}

// ParseEnergyConsumerType reads a consumer type name. Besides the
// canonical names it accepts "CPU", the short form the system service
// uses for CPU clusters. Unknown names yield (ConsumerOther, false);
// the caller keeps the raw name in that case.
func ParseEnergyConsumerType(s string) (EnergyConsumerType, bool) {
	switch s {
	case "OTHER":
		return ConsumerOther, true
	case "BLUETOOTH":
		return ConsumerBluetooth, true
	case "CPU", "CPU_CLUSTER":
		return ConsumerCPUCluster, true
	case "DISPLAY":
		return ConsumerDisplay, true
	case "GNSS":
		return ConsumerGNSS, true
	case "MOBILE_RADIO":
		return ConsumerMobileRadio, true
	case "WIFI":
		return ConsumerWiFi, true
	case "CAMERA":
		return ConsumerCamera, true
	}
	return ConsumerOther, false
}

// MarshalText renders the canonical name, so JSON payloads carry
// "CPU_CLUSTER" instead of a bare number.
func (t EnergyConsumerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EnergyConsumerType) UnmarshalText(b []byte) error {
	v, ok := ParseEnergyConsumerType(string(b))
	if !ok {
		return fmt.Errorf("powerstats: unknown energy consumer type %q", string(b))
	}
	*t = v
	return nil
}

// EnergyMeter is one directly measured power rail.
type EnergyMeter struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
	// Subsystem is reported by the vendor HAL; on the system backend it
	// is recovered from the monitor name's ":subsystem" suffix.
	Subsystem string `json:"subsystem"`
}

// EnergyMeterReading is one cumulative meter sample.
type EnergyMeterReading struct {
	// Timestamp is monotonic since device boot.
	Timestamp time.Duration `json:"timestamp"`
	// Duration is the accumulation window. The system backend does not
	// report one.
	Duration  *time.Duration `json:"duration,omitempty"`
	EnergyUWs int64          `json:"energy_uws"`
}

// EnergyConsumer is one aggregated consumer, e.g. a CPU cluster.
type EnergyConsumer struct {
	ID      int32              `json:"id"`
	Name    string             `json:"name"`
	Ordinal int32              `json:"ordinal"`
	Type    EnergyConsumerType `json:"type"`
}

// EnergyConsumerAttribution assigns part of a consumer's energy to a
// UID (an app).
type EnergyConsumerAttribution struct {
	UID       int32 `json:"uid"`
	EnergyUWs int64 `json:"energy_uws"`
}

// EnergyConsumerReading is one cumulative consumer sample.
type EnergyConsumerReading struct {
	// Timestamp is monotonic since device boot.
	Timestamp time.Duration `json:"timestamp"`
	EnergyUWs int64         `json:"energy_uws"`
	// Attribution is only available from the vendor HAL.
	Attribution []EnergyConsumerAttribution `json:"attribution,omitempty"`
}

// PowerState is one power state of an entity.
type PowerState struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// PowerEntity is a platform subsystem with enumerable power states.
type PowerEntity struct {
	ID     int32        `json:"id"`
	Name   string       `json:"name"`
	States []PowerState `json:"states"`
}

// StateResidency is the accumulated residency of one state.
type StateResidency struct {
	StateID            int32         `json:"state_id"`
	TotalTime          time.Duration `json:"total_time"`
	TotalEntryCount    int64         `json:"total_entry_count"`
	LastEntryTimestamp time.Duration `json:"last_entry_timestamp"`
}

// StateResidencyResult carries the residency of all states of one
// entity.
type StateResidencyResult struct {
	EntityID  int32            `json:"entity_id"`
	Residency []StateResidency `json:"residency"`
}

func timeDurationMs(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func meterFromChannel(c hal.Channel) EnergyMeter {
	return EnergyMeter{ID: c.ID, Name: c.Name, Subsystem: c.Subsystem}
}

func readingFromMeasurement(m hal.EnergyMeasurement) EnergyMeterReading {
	d := timeDurationMs(m.DurationMs)
	return EnergyMeterReading{
		Timestamp: timeDurationMs(m.TimestampMs),
		Duration:  &d,
		EnergyUWs: m.EnergyUWs,
	}
}

func consumerFromHAL(c hal.EnergyConsumer) EnergyConsumer {
	return EnergyConsumer{
		ID:      c.ID,
		Name:    c.Name,
		Ordinal: c.Ordinal,
		Type:    EnergyConsumerType(c.Type),
	}
}

func readingFromConsumerResult(r hal.EnergyConsumerResult) EnergyConsumerReading {
	out := EnergyConsumerReading{
		Timestamp: timeDurationMs(r.TimestampMs),
		EnergyUWs: r.EnergyUWs,
	}
	for _, a := range r.Attribution {
		out.Attribution = append(out.Attribution, EnergyConsumerAttribution{UID: a.UID, EnergyUWs: a.EnergyUWs})
	}
	return out
}

func entityFromHAL(e hal.PowerEntity) PowerEntity {
	out := PowerEntity{ID: e.ID, Name: e.Name}
	for _, s := range e.States {
		out.States = append(out.States, PowerState{ID: s.ID, Name: s.Name})
	}
	return out
}

func residencyFromHAL(r hal.StateResidencyResult) StateResidencyResult {
	out := StateResidencyResult{EntityID: r.ID}
	for _, s := range r.StateResidencyData {
		out.Residency = append(out.Residency, StateResidency{
			StateID:            s.ID,
			TotalTime:          timeDurationMs(s.TotalTimeInStateMs),
			TotalEntryCount:    s.TotalStateEntryCount,
			LastEntryTimestamp: timeDurationMs(s.LastEntryTimestampMs),
		})
	}
	return out
}
