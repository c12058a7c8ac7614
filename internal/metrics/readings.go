package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const microwattSecondsPerJoule = 1e6

var (
	meterEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_meter_energy_joules",
		Help: "Cumulative energy reported per rail meter, converted from microwatt-seconds",
	}, []string{"meter", "subsystem"})

	consumerEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_consumer_energy_joules",
		Help: "Cumulative energy reported per consumer, converted from microwatt-seconds",
	}, []string{"consumer", "type"})

	attributedEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_consumer_attributed_energy_joules",
		Help: "Cumulative energy attributed to a uid within a consumer",
	}, []string{"consumer", "uid"})

	stateResidency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_entity_state_residency_seconds",
		Help: "Cumulative time a power entity spent in each state",
	}, []string{"entity", "state"})

	stateEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_entity_state_entries",
		Help: "Cumulative number of times a power entity entered each state",
	}, []string{"entity", "state"})
)

// ResetReadings clears all per-meter, per-consumer and per-entity
// series. The poller calls it before republishing a snapshot so that
// channels which disappeared from the device do not linger as stale
// series.
func ResetReadings() {
	meterEnergy.Reset()
	consumerEnergy.Reset()
	attributedEnergy.Reset()
	stateResidency.Reset()
	stateEntries.Reset()
}

// RecordMeterEnergy publishes one rail meter reading.
func RecordMeterEnergy(meter, subsystem string, energyUWs int64) {
	meterEnergy.WithLabelValues(meter, subsystem).Set(float64(energyUWs) / microwattSecondsPerJoule)
}

// RecordConsumerEnergy publishes one consumer reading.
func RecordConsumerEnergy(consumer, consumerType string, energyUWs int64) {
	consumerEnergy.WithLabelValues(consumer, consumerType).Set(float64(energyUWs) / microwattSecondsPerJoule)
}

// RecordAttributedEnergy publishes the energy attributed to one uid of
// a consumer.
func RecordAttributedEnergy(consumer, uid string, energyUWs int64) {
	attributedEnergy.WithLabelValues(consumer, uid).Set(float64(energyUWs) / microwattSecondsPerJoule)
}

// RecordStateResidency publishes residency for one entity state.
// totalTimeMs and entryCount are the cumulative values reported by the
// device.
func RecordStateResidency(entity, state string, totalTimeMs, entryCount int64) {
	stateResidency.WithLabelValues(entity, state).Set(float64(totalTimeMs) / 1000)
	stateEntries.WithLabelValues(entity, state).Set(float64(entryCount))
}
