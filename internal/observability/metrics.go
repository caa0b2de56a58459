package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openslot_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openslot_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// planning calls by strategy and outcome status
	PlanCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openslot_plans_total",
			Help: "Total planning calls by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	// wall-clock time spent inside the solver
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openslot_solve_duration_seconds",
			Help:    "Duration of solver invocations",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)

	// decision variables per model, i.e. chunks
	ModelVariables = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openslot_model_variables",
			Help:    "Number of decision variables per optimisation model",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	// solver runs that hit the node/time budget
	SolverBudgetExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openslot_solver_budget_exhausted_total",
			Help: "Total solver runs stopped by the time or node budget",
		},
	)

	// realized OTS of the most recent successful plan
	RealizedOTS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "openslot_realized_ots",
			Help: "Aggregate realized OTS of the last successful plan",
		},
	)

	// forecast cache lookups by outcome (hit, miss, error)
	ForecastCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openslot_forecast_cache_total",
			Help: "Forecast cache lookups by outcome",
		},
		[]string{"outcome"},
	)

	// schedules committed to the reservation ledger
	LedgerCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openslot_ledger_commits_total",
			Help: "Total schedules committed to the reservation ledger",
		},
	)

	// failed ledger commits
	LedgerCommitErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openslot_ledger_commit_errors_total",
			Help: "Total ledger commit failures",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		PlanCount,
		SolveDuration,
		ModelVariables,
		SolverBudgetExhausted,
		RealizedOTS,
		ForecastCacheLookups,
		LedgerCommits,
		LedgerCommitErrors,
	)
}
