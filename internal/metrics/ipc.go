package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ipcTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powerstats_ipc_transactions_total",
		Help: "Total number of hub transactions by service, method code and outcome",
	}, []string{"service", "code", "outcome"}) // outcome=ok|exception|timeout|canceled|closed|error

	ipcTransactionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powerstats_ipc_transaction_duration_seconds",
		Help:    "Hub transaction round-trip latencies",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service"})
)

// Transaction records the outcome of one hub transaction. Its
// signature matches ipc.TransactionObserver so it can be installed
// directly with Conn.SetObserver.
func Transaction(service string, code uint32, outcome string, elapsed time.Duration) {
	if service == "" {
		service = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	ipcTransactionsTotal.WithLabelValues(service, strconv.FormatUint(uint64(code), 10), outcome).Inc()
	ipcTransactionDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}
