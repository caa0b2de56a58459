package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// so components receive metrics through dependency injection.
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Planning metrics
	IncrementPlans(strategy, status string)
	RecordSolveDuration(duration time.Duration)
	RecordModelVariables(count int)
	IncrementSolverBudgetExhausted()
	SetRealizedOTS(ots float64)

	// Forecast cache metrics
	IncrementForecastCache(outcome string)

	// Ledger metrics
	IncrementLedgerCommits()
	IncrementLedgerCommitErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Planning metrics
func (r *PrometheusRegistry) IncrementPlans(strategy, status string) {
	PlanCount.WithLabelValues(strategy, status).Inc()
}

func (r *PrometheusRegistry) RecordSolveDuration(duration time.Duration) {
	SolveDuration.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) RecordModelVariables(count int) {
	ModelVariables.Observe(float64(count))
}

func (r *PrometheusRegistry) IncrementSolverBudgetExhausted() {
	SolverBudgetExhausted.Inc()
}

func (r *PrometheusRegistry) SetRealizedOTS(ots float64) {
	RealizedOTS.Set(ots)
}

// Forecast cache metrics
func (r *PrometheusRegistry) IncrementForecastCache(outcome string) {
	ForecastCacheLookups.WithLabelValues(outcome).Inc()
}

// Ledger metrics
func (r *PrometheusRegistry) IncrementLedgerCommits() {
	LedgerCommits.Inc()
}

func (r *PrometheusRegistry) IncrementLedgerCommitErrors() {
	LedgerCommitErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementPlans(strategy, status string)                               {}
func (r *NoOpRegistry) RecordSolveDuration(duration time.Duration)                           {}
func (r *NoOpRegistry) RecordModelVariables(count int)                                       {}
func (r *NoOpRegistry) IncrementSolverBudgetExhausted()                                      {}
func (r *NoOpRegistry) SetRealizedOTS(ots float64)                                           {}
func (r *NoOpRegistry) IncrementForecastCache(outcome string)                                {}
func (r *NoOpRegistry) IncrementLedgerCommits()                                              {}
func (r *NoOpRegistry) IncrementLedgerCommitErrors()                                         {}
