// Package sysmon binds the system power monitor service. Unlike the
// vendor HAL it is callback-based: both operations are oneway and the
// service pushes results to a caller-supplied receiver object, carrying
// them in a string-keyed bundle.
package sysmon

import (
	"errors"

	"github.com/railmon/powerstats/internal/bundle"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/parcel"
)

// Descriptor is the system power monitor interface descriptor.
const Descriptor = "os.IPowerStatsService"

// ServiceName is the hub registration name of the system service.
const ServiceName = "powerstats"

// ReceiverDescriptor is the interface of the caller-owned result sink.
const ReceiverDescriptor = "os.IResultReceiver"

// monitorDescriptor identifies PowerMonitor values inside bundles.
const monitorDescriptor = "os.PowerMonitor"

const (
	opGetSupportedPowerMonitors = ipc.FirstCall
	opGetPowerMonitorReadings   = ipc.FirstCall + 1

	// receiverSend is the single operation of a result receiver.
	receiverSend = ipc.FirstCall
)

// Bundle keys used by the service.
const (
	keyMonitors   = "monitors"
	keyTimestamps = "timestamps"
	keyEnergy     = "energy"
)

// Result codes delivered to the receiver.
const (
	resultSuccess             = 0
	resultMonitorNotSupported = 1
)

// ErrUnsupportedMonitor is returned when a reading is requested for a
// monitor index the service does not expose.
var ErrUnsupportedMonitor = errors.New("sysmon: power monitor not supported")

// PowerMonitorType distinguishes modeled consumers from direct rail
// measurements.
type PowerMonitorType int32

const (
	// MonitorConsumer is a modeled subsystem consumer; its energy may
	// combine several rails or a share of one.
	MonitorConsumer PowerMonitorType = 0
	// MonitorMeasurement is a directly measured, device-specific rail.
	MonitorMeasurement PowerMonitorType = 1
)

func (t PowerMonitorType) String() string {
	switch t {
	case MonitorConsumer:
		return "CONSUMER"
	case MonitorMeasurement:
		return "MEASUREMENT"
	}
	return "UNKNOWN"
}

// PowerMonitor is one entry of the service's monitor table. The index
// doubles as the id readings are requested by.
type PowerMonitor struct {
	Index int32
	Type  PowerMonitorType
	Name  string
}

// ParcelDescriptor implements bundle.Parcelable.
func (PowerMonitor) ParcelDescriptor() string { return monitorDescriptor }

// WriteToParcel implements bundle.Parcelable. The name travels as a
// byte string, the only such field in the protocol.
func (m PowerMonitor) WriteToParcel(w *parcel.Writer) {
	w.WriteInt32(m.Index)
	w.WriteInt32(int32(m.Type))
	w.WriteString8(m.Name)
}

func init() {
	bundle.Register(monitorDescriptor, func(r *parcel.Reader) (any, error) {
		var m PowerMonitor
		var err error
		if m.Index, err = r.Int32(); err != nil {
			return nil, err
		}
		typ, err := r.Int32()
		if err != nil {
			return nil, err
		}
		m.Type = PowerMonitorType(typ)
		if m.Name, err = r.String8(); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// Readings carries one batch of monitor samples, parallel to the
// requested indices.
type Readings struct {
	TimestampsMs []int64
	EnergyUWs    []int64
}
