package hal

import (
	"context"

	"github.com/railmon/powerstats/internal/ipc"
	"github.com/railmon/powerstats/internal/parcel"
)

type stub struct {
	svc Service
}

// NewStub exposes svc over the hub protocol. Register the result under
// Instance to make it resolvable by clients.
func NewStub(svc Service) ipc.Stub {
	return &stub{svc: svc}
}

func (s *stub) Descriptor() string { return Descriptor }

func (s *stub) Transact(ctx context.Context, code uint32, in *parcel.Reader, out *parcel.Writer) error {
	switch code {
	case opGetPowerEntityInfo:
		ents, err := s.svc.GetPowerEntityInfo(ctx)
		if err != nil {
			return err
		}
		writePowerEntities(out, ents)
		return nil

	case opGetStateResidency:
		ids, err := in.Int32Vector()
		if err != nil {
			return err
		}
		results, err := s.svc.GetStateResidency(ctx, ids)
		if err != nil {
			return err
		}
		writeStateResidencyResults(out, results)
		return nil

	case opGetEnergyConsumerInfo:
		cons, err := s.svc.GetEnergyConsumerInfo(ctx)
		if err != nil {
			return err
		}
		writeEnergyConsumers(out, cons)
		return nil

	case opGetEnergyConsumed:
		ids, err := in.Int32Vector()
		if err != nil {
			return err
		}
		results, err := s.svc.GetEnergyConsumed(ctx, ids)
		if err != nil {
			return err
		}
		writeEnergyConsumerResults(out, results)
		return nil

	case opGetEnergyMeterInfo:
		chans, err := s.svc.GetEnergyMeterInfo(ctx)
		if err != nil {
			return err
		}
		writeChannels(out, chans)
		return nil

	case opReadEnergyMeter:
		ids, err := in.Int32Vector()
		if err != nil {
			return err
		}
		meas, err := s.svc.ReadEnergyMeter(ctx, ids)
		if err != nil {
			return err
		}
		writeEnergyMeasurements(out, meas)
		return nil
	}
	return ipc.Errorf(ipc.CodeUnsupported, "power stats operation %d", code)
}
