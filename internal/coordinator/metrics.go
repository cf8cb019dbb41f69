package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vijaygupta18/multidb/internal/model"
)

const (
	reasonAge      = "age"
	reasonCapacity = "capacity"

	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	recordsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multidb_execution_records",
		Help: "Number of execution records held in memory.",
	})

	activeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multidb_active_executions",
		Help: "Number of executions holding live target sessions.",
	})

	executionsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multidb_executions_started_total",
		Help: "Total number of executions started.",
	})

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_execution_transitions_total",
			Help: "Total number of executions reaching a terminal status.",
		},
		[]string{"status"},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_execution_evictions_total",
			Help: "Total number of finished execution records evicted.",
		},
		[]string{"reason"},
	)

	leakedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multidb_leaked_active_executions_total",
		Help: "Total number of active executions dropped after exceeding the leak ceiling.",
	})

	interruptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multidb_cancel_interrupts_total",
			Help: "Total number of server-side interrupts sent on user cancel.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(recordsGauge)
	prometheus.MustRegister(activeGauge)
	prometheus.MustRegister(executionsStartedTotal)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(evictionsTotal)
	prometheus.MustRegister(leakedTotal)
	prometheus.MustRegister(interruptsTotal)

	for _, s := range []string{model.StatusCompleted, model.StatusFailed, model.StatusCancelled} {
		transitionsTotal.WithLabelValues(s)
	}
	evictionsTotal.WithLabelValues(reasonAge)
	evictionsTotal.WithLabelValues(reasonCapacity)
	interruptsTotal.WithLabelValues(outcomeSuccess)
	interruptsTotal.WithLabelValues(outcomeError)
}
