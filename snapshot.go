package powerstats

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// MeterSnapshot pairs a meter with its reading.
type MeterSnapshot struct {
	Meter   EnergyMeter        `json:"meter"`
	Reading EnergyMeterReading `json:"reading"`
}

// ConsumerSnapshot pairs a consumer with its reading.
type ConsumerSnapshot struct {
	Consumer EnergyConsumer        `json:"consumer"`
	Reading  EnergyConsumerReading `json:"reading"`
}

// EntityResidency pairs a power entity with its state residency.
type EntityResidency struct {
	Entity    PowerEntity      `json:"entity"`
	Residency []StateResidency `json:"residency"`
}

// Snapshot is one complete view of the device's power telemetry.
// Entities are only present on the vendor HAL backend.
type Snapshot struct {
	TakenAt   time.Time          `json:"taken_at"`
	Backend   Backend            `json:"backend"`
	Meters    []MeterSnapshot    `json:"meters"`
	Consumers []ConsumerSnapshot `json:"consumers"`
	Entities  []EntityResidency  `json:"entities,omitempty"`
}

// Snapshot lists every meter, consumer and (on the vendor HAL) entity
// and samples them, fetching the three groups concurrently.
func (p *PowerStats) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		TakenAt: time.Now().UTC(),
		Backend: p.backend,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		meters, err := p.EnergyMeters(gctx)
		if err != nil {
			return fmt.Errorf("snapshot meters: %w", err)
		}
		if len(meters) == 0 {
			return nil
		}
		ids := make([]int32, len(meters))
		for i, m := range meters {
			ids[i] = m.ID
		}
		readings, err := p.ReadEnergyMeters(gctx, ids)
		if err != nil {
			return fmt.Errorf("snapshot meter readings: %w", err)
		}
		if len(readings) != len(meters) {
			return fmt.Errorf("snapshot: %d meter readings for %d meters", len(readings), len(meters))
		}
		snap.Meters = make([]MeterSnapshot, len(meters))
		for i := range meters {
			snap.Meters[i] = MeterSnapshot{Meter: meters[i], Reading: readings[i]}
		}
		return nil
	})

	g.Go(func() error {
		consumers, err := p.EnergyConsumers(gctx)
		if err != nil {
			return fmt.Errorf("snapshot consumers: %w", err)
		}
		if len(consumers) == 0 {
			return nil
		}
		ids := make([]int32, len(consumers))
		for i, c := range consumers {
			ids[i] = c.ID
		}
		readings, err := p.ReadEnergyConsumers(gctx, ids)
		if err != nil {
			return fmt.Errorf("snapshot consumer readings: %w", err)
		}
		if len(readings) != len(consumers) {
			return fmt.Errorf("snapshot: %d consumer readings for %d consumers", len(readings), len(consumers))
		}
		snap.Consumers = make([]ConsumerSnapshot, len(consumers))
		for i := range consumers {
			snap.Consumers[i] = ConsumerSnapshot{Consumer: consumers[i], Reading: readings[i]}
		}
		return nil
	})

	if p.backend == BackendVendorHAL {
		g.Go(func() error {
			entities, err := p.PowerEntities(gctx)
			if err != nil {
				return fmt.Errorf("snapshot entities: %w", err)
			}
			if len(entities) == 0 {
				return nil
			}
			residency, err := p.StateResidency(gctx, nil)
			if err != nil {
				return fmt.Errorf("snapshot residency: %w", err)
			}
			byEntity := make(map[int32][]StateResidency, len(residency))
			for _, r := range residency {
				byEntity[r.EntityID] = r.Residency
			}
			snap.Entities = make([]EntityResidency, len(entities))
			for i, e := range entities {
				snap.Entities[i] = EntityResidency{Entity: e, Residency: byEntity[e.ID]}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
