package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	LedgerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_calls_total",
			Help: "Total number of remote account ledger calls",
		},
		[]string{"operation", "status"},
	)

	LedgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_call_duration_seconds",
			Help:    "Duration of remote account ledger calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	TransactionsByOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_total",
			Help: "Fund-movement operations by kind and terminal status",
		},
		[]string{"kind", "status"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		RepositoryCalls,
		RepositoryDuration,
		LedgerCalls,
		LedgerDuration,
		TransactionsByOutcome,
	)
}
