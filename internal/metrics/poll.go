// Package metrics exposes the Prometheus instrumentation for the
// exporter. All metrics live in the powerstats_ namespace and are
// registered at package init via promauto; callers record values
// through the helper functions instead of touching collectors
// directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powerstats_poll_cycles_total",
		Help: "Total number of poll cycles started",
	})

	pollFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powerstats_poll_failures_total",
		Help: "Total number of poll failures by stage",
	}, []string{"stage"}) // stage=read|store|archive|snapshot_file

	pollSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powerstats_poll_skipped_total",
		Help: "Total number of poll ticks skipped because the previous cycle was still running",
	})

	pollDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powerstats_poll_duration_seconds",
		Help:    "Time spent collecting one full snapshot from the hub",
		Buckets: prometheus.DefBuckets,
	})

	lastPollTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powerstats_last_poll_timestamp_seconds",
		Help: "Unix timestamp of the last successful poll",
	})

	backendActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerstats_backend_active",
		Help: "Telemetry backend currently in use (1 for the active backend)",
	}, []string{"backend"}) // backend=hal|system

	metersDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powerstats_meters_discovered",
		Help: "Number of energy meter channels reported in the last poll",
	})

	consumersDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powerstats_consumers_discovered",
		Help: "Number of energy consumers reported in the last poll",
	})

	entitiesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powerstats_entities_discovered",
		Help: "Number of power entities reported in the last poll",
	})
)

// IncPollCycle counts the start of a poll cycle.
func IncPollCycle() { pollCyclesTotal.Inc() }

// IncPollFailure counts a failed poll stage.
func IncPollFailure(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	pollFailuresTotal.WithLabelValues(stage).Inc()
}

// IncPollSkipped counts a tick dropped due to an overlapping cycle.
func IncPollSkipped() { pollSkippedTotal.Inc() }

// ObservePollDuration records how long one snapshot collection took.
func ObservePollDuration(d time.Duration) { pollDurationSeconds.Observe(d.Seconds()) }

// RecordPollSuccess marks the completion time of the last good poll.
func RecordPollSuccess(at time.Time) { lastPollTimestamp.Set(float64(at.Unix())) }

// RecordBackend marks which backend served the last poll. Previous
// backend series are cleared so at most one reports 1.
func RecordBackend(backend string) {
	backendActive.Reset()
	if backend != "" {
		backendActive.WithLabelValues(backend).Set(1)
	}
}

// RecordMonitorCounts publishes how many meters, consumers and entities
// the last poll returned.
func RecordMonitorCounts(meters, consumers, entities int) {
	metersDiscovered.Set(float64(meters))
	consumersDiscovered.Set(float64(consumers))
	entitiesDiscovered.Set(float64(entities))
}
