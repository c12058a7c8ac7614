// Package hal binds the vendor power stats HAL: typed request/reply
// operations exposing raw energy meter channels, aggregated energy
// consumers with per-UID attribution, and power entity state residency.
//
// The bindings are hand-written against the interface's wire contract;
// structured values travel as size-prefixed parcelables so both sides
// tolerate fields added by newer peers.
package hal

import (
	"fmt"

	"github.com/railmon/powerstats/internal/parcel"
)

// Descriptor is the power stats HAL interface descriptor.
const Descriptor = "hal.power.stats.IPowerStats"

// Instance is the hub registration name of the default HAL instance.
const Instance = Descriptor + "/default"

// EnergyConsumerType classifies an aggregated energy consumer.
type EnergyConsumerType int32

const (
	EnergyConsumerOther EnergyConsumerType = iota
	EnergyConsumerBluetooth
	EnergyConsumerCPUCluster
	EnergyConsumerDisplay
	EnergyConsumerGNSS
	EnergyConsumerMobileRadio
	EnergyConsumerWiFi
	EnergyConsumerCamera
)

func (t EnergyConsumerType) String() string {
	switch t {
	case EnergyConsumerOther:
		return "OTHER"
	case EnergyConsumerBluetooth:
		return "BLUETOOTH"
	case EnergyConsumerCPUCluster:
		return "CPU_CLUSTER"
	case EnergyConsumerDisplay:
		return "DISPLAY"
	case EnergyConsumerGNSS:
		return "GNSS"
	case EnergyConsumerMobileRadio:
		return "MOBILE_RADIO"
	case EnergyConsumerWiFi:
		return "WIFI"
	case EnergyConsumerCamera:
		return "CAMERA"
	}
	return fmt.Sprintf("TYPE(%d)", int32(t))
}

// Channel is one raw energy meter (power rail).
type Channel struct {
	ID        int32
	Name      string
	Subsystem string
}

// EnergyMeasurement is one cumulative meter reading.
type EnergyMeasurement struct {
	ID          int32
	TimestampMs int64
	DurationMs  int64
	EnergyUWs   int64
}

// EnergyConsumer describes an aggregated consumer, e.g. one CPU cluster.
type EnergyConsumer struct {
	ID      int32
	Ordinal int32
	Type    EnergyConsumerType
	Name    string
}

// EnergyConsumerAttribution assigns part of a consumer's energy to a UID.
type EnergyConsumerAttribution struct {
	UID       int32
	EnergyUWs int64
}

// EnergyConsumerResult is one cumulative consumer reading.
type EnergyConsumerResult struct {
	ID          int32
	TimestampMs int64
	EnergyUWs   int64
	Attribution []EnergyConsumerAttribution
}

// State is one power state of an entity.
type State struct {
	ID   int32
	Name string
}

// PowerEntity is a platform subsystem with enumerable power states.
type PowerEntity struct {
	ID     int32
	Name   string
	States []State
}

// StateResidency is the accumulated residency of one state.
type StateResidency struct {
	ID                   int32
	TotalTimeInStateMs   int64
	TotalStateEntryCount int64
	LastEntryTimestampMs int64
}

// StateResidencyResult carries the residency of all states of one entity.
type StateResidencyResult struct {
	ID                 int32
	StateResidencyData []StateResidency
}

func (c Channel) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(c.ID)
		w.WriteString16(c.Name)
		w.WriteString16(c.Subsystem)
	})
}

func readChannel(r *parcel.Reader) (Channel, error) {
	var c Channel
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if c.ID, err = o.Int32(); err != nil {
			return err
		}
		if c.Name, err = o.String16(); err != nil {
			return err
		}
		c.Subsystem, err = o.String16()
		return err
	})
	return c, err
}

func (m EnergyMeasurement) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(m.ID)
		w.WriteInt64(m.TimestampMs)
		w.WriteInt64(m.DurationMs)
		w.WriteInt64(m.EnergyUWs)
	})
}

func readEnergyMeasurement(r *parcel.Reader) (EnergyMeasurement, error) {
	var m EnergyMeasurement
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if m.ID, err = o.Int32(); err != nil {
			return err
		}
		if m.TimestampMs, err = o.Int64(); err != nil {
			return err
		}
		if m.DurationMs, err = o.Int64(); err != nil {
			return err
		}
		m.EnergyUWs, err = o.Int64()
		return err
	})
	return m, err
}

func (c EnergyConsumer) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(c.ID)
		w.WriteInt32(c.Ordinal)
		w.WriteInt32(int32(c.Type))
		w.WriteString16(c.Name)
	})
}

func readEnergyConsumer(r *parcel.Reader) (EnergyConsumer, error) {
	var c EnergyConsumer
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if c.ID, err = o.Int32(); err != nil {
			return err
		}
		if c.Ordinal, err = o.Int32(); err != nil {
			return err
		}
		typ, err := o.Int32()
		if err != nil {
			return err
		}
		c.Type = EnergyConsumerType(typ)
		c.Name, err = o.String16()
		return err
	})
	return c, err
}

func (a EnergyConsumerAttribution) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(a.UID)
		w.WriteInt64(a.EnergyUWs)
	})
}

func readEnergyConsumerAttribution(r *parcel.Reader) (EnergyConsumerAttribution, error) {
	var a EnergyConsumerAttribution
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if a.UID, err = o.Int32(); err != nil {
			return err
		}
		a.EnergyUWs, err = o.Int64()
		return err
	})
	return a, err
}

func (res EnergyConsumerResult) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(res.ID)
		w.WriteInt64(res.TimestampMs)
		w.WriteInt64(res.EnergyUWs)
		w.WriteInt32(int32(len(res.Attribution)))
		for _, a := range res.Attribution {
			a.writeTo(w)
		}
	})
}

func readEnergyConsumerResult(r *parcel.Reader) (EnergyConsumerResult, error) {
	var res EnergyConsumerResult
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if res.ID, err = o.Int32(); err != nil {
			return err
		}
		if res.TimestampMs, err = o.Int64(); err != nil {
			return err
		}
		if res.EnergyUWs, err = o.Int64(); err != nil {
			return err
		}
		n, err := o.Int32()
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			a, err := readEnergyConsumerAttribution(o)
			if err != nil {
				return err
			}
			res.Attribution = append(res.Attribution, a)
		}
		return nil
	})
	return res, err
}

func (s State) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(s.ID)
		w.WriteString16(s.Name)
	})
}

func readState(r *parcel.Reader) (State, error) {
	var s State
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if s.ID, err = o.Int32(); err != nil {
			return err
		}
		s.Name, err = o.String16()
		return err
	})
	return s, err
}

func (e PowerEntity) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(e.ID)
		w.WriteString16(e.Name)
		w.WriteInt32(int32(len(e.States)))
		for _, s := range e.States {
			s.writeTo(w)
		}
	})
}

func readPowerEntity(r *parcel.Reader) (PowerEntity, error) {
	var e PowerEntity
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if e.ID, err = o.Int32(); err != nil {
			return err
		}
		if e.Name, err = o.String16(); err != nil {
			return err
		}
		n, err := o.Int32()
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			s, err := readState(o)
			if err != nil {
				return err
			}
			e.States = append(e.States, s)
		}
		return nil
	})
	return e, err
}

func (s StateResidency) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(s.ID)
		w.WriteInt64(s.TotalTimeInStateMs)
		w.WriteInt64(s.TotalStateEntryCount)
		w.WriteInt64(s.LastEntryTimestampMs)
	})
}

func readStateResidency(r *parcel.Reader) (StateResidency, error) {
	var s StateResidency
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if s.ID, err = o.Int32(); err != nil {
			return err
		}
		if s.TotalTimeInStateMs, err = o.Int64(); err != nil {
			return err
		}
		if s.TotalStateEntryCount, err = o.Int64(); err != nil {
			return err
		}
		s.LastEntryTimestampMs, err = o.Int64()
		return err
	})
	return s, err
}

func (res StateResidencyResult) writeTo(w *parcel.Writer) {
	w.WriteSized(func(w *parcel.Writer) {
		w.WriteInt32(res.ID)
		w.WriteInt32(int32(len(res.StateResidencyData)))
		for _, s := range res.StateResidencyData {
			s.writeTo(w)
		}
	})
}

func readStateResidencyResult(r *parcel.Reader) (StateResidencyResult, error) {
	var res StateResidencyResult
	err := r.ReadSized(func(o *parcel.Reader) error {
		var err error
		if res.ID, err = o.Int32(); err != nil {
			return err
		}
		n, err := o.Int32()
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			s, err := readStateResidency(o)
			if err != nil {
				return err
			}
			res.StateResidencyData = append(res.StateResidencyData, s)
		}
		return nil
	})
	return res, err
}
