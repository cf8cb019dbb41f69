package executor

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for statement outcomes.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

var (
	statementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multidb_statement_duration_seconds",
			Help:    "Duration of individual statements on a target, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	autoRollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_auto_rollbacks_total",
			Help: "Total number of ROLLBACKs issued after a failure inside a transaction.",
		},
		[]string{"outcome"},
	)

	backendInterruptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_statement_timeout_interrupts_total",
			Help: "Total number of server-side cancels sent after a statement timeout.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(statementDuration)
	prometheus.MustRegister(autoRollbacksTotal)
	prometheus.MustRegister(backendInterruptsTotal)

	for _, o := range []string{outcomeSuccess, outcomeError, outcomeTimeout, outcomeCancelled} {
		statementDuration.WithLabelValues(o)
	}
	autoRollbacksTotal.WithLabelValues(outcomeSuccess)
	autoRollbacksTotal.WithLabelValues(outcomeError)
}
