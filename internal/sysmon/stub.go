package sysmon

import (
	"context"
	"errors"

	"github.com/railmon/powerstats/internal/bundle"
	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/log"
	"github.com/railmon/powerstats/internal/parcel"
)

// Service is the server-side contract behind the stub.
type Service interface {
	GetSupportedPowerMonitors(ctx context.Context) ([]PowerMonitor, error)
	GetPowerMonitorReadings(ctx context.Context, indices []int32) (Readings, error)
}

type stub struct {
	svc Service
}

// NewStub exposes svc over the hub protocol. Register the result under
// ServiceName to make it resolvable by clients.
func NewStub(svc Service) ipc.Stub {
	return &stub{svc: svc}
}

func (s *stub) Descriptor() string { return Descriptor }

// Both operations are oneway: the reply writer stays empty and results
// travel back through the receiver object named in the request.
func (s *stub) Transact(ctx context.Context, code uint32, in *parcel.Reader, _ *parcel.Writer) error {
	switch code {
	case opGetSupportedPowerMonitors:
		return s.supportedMonitors(ctx, in)
	case opGetPowerMonitorReadings:
		return s.monitorReadings(ctx, in)
	}
	return ipc.Errorf(ipc.CodeUnsupported, "power monitor operation %d", code)
}

func (s *stub) supportedMonitors(ctx context.Context, in *parcel.Reader) error {
	recv, err := readReceiver(in)
	if err != nil {
		return err
	}
	monitors, err := s.svc.GetSupportedPowerMonitors(ctx)
	if err != nil {
		// No result code fits; the caller's deadline handles it.
		logger := log.WithComponent("sysmon")
		logger.Warn().
			Str(log.FieldEvent, "sysmon.monitors.failed").
			Err(err).
			Msg("supported power monitors query failed, receiver not called")
		return nil
	}
	items := make([]bundle.Parcelable, len(monitors))
	for i, m := range monitors {
		items[i] = m
	}
	data := bundle.New().PutParcelables(keyMonitors, items)
	return sendResult(ctx, recv, resultSuccess, data)
}

func (s *stub) monitorReadings(ctx context.Context, in *parcel.Reader) error {
	indices, err := in.Int32Vector()
	if err != nil {
		return err
	}
	recv, err := readReceiver(in)
	if err != nil {
		return err
	}
	readings, err := s.svc.GetPowerMonitorReadings(ctx, indices)
	switch {
	case errors.Is(err, ErrUnsupportedMonitor):
		return sendResult(ctx, recv, resultMonitorNotSupported, bundle.New())
	case err != nil:
		logger := log.WithComponent("sysmon")
		logger.Warn().
			Str(log.FieldEvent, "sysmon.readings.failed").
			Err(err).
			Msg("power monitor readings query failed, receiver not called")
		return nil
	}
	data := bundle.New().
		PutLongs(keyTimestamps, readings.TimestampsMs).
		PutLongs(keyEnergy, readings.EnergyUWs)
	return sendResult(ctx, recv, resultSuccess, data)
}

func readReceiver(in *parcel.Reader) (ipc.Handle, error) {
	h, ok, err := in.ReadObjectHandle()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ipc.Errorf(ipc.CodeIllegalArgument, "missing result receiver")
	}
	return ipc.Handle(h), nil
}

func sendResult(ctx context.Context, recv ipc.Handle, code int32, data *bundle.Bundle) error {
	caller, ok := ipc.CallerFromContext(ctx)
	if !ok {
		return ipc.Errorf(ipc.CodeIllegalState, "no caller attached to context")
	}
	w := parcel.NewWriter()
	w.WriteString16(ReceiverDescriptor)
	w.WriteInt32(code)
	if err := data.Write(w); err != nil {
		return err
	}
	return caller.TransactOneway(ctx, recv, receiverSend, w)
}
