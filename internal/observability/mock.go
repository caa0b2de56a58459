package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records calls so tests can assert on emitted metrics.
type MockMetricsRegistry struct {
	mu sync.Mutex

	Requests           map[string]int
	Plans              map[string]int
	SolveDurations     []time.Duration
	ModelVariables     []int
	BudgetExhausted    int
	LastRealizedOTS    float64
	ForecastCache      map[string]int
	LedgerCommits      int
	LedgerCommitErrors int
}

// NewMockMetricsRegistry returns an empty recording registry.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		Requests:      make(map[string]int),
		Plans:         make(map[string]int),
		ForecastCache: make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[endpoint+" "+method+" "+status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementPlans(strategy, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Plans[strategy+"/"+status]++
}

func (m *MockMetricsRegistry) RecordSolveDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SolveDurations = append(m.SolveDurations, duration)
}

func (m *MockMetricsRegistry) RecordModelVariables(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ModelVariables = append(m.ModelVariables, count)
}

func (m *MockMetricsRegistry) IncrementSolverBudgetExhausted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BudgetExhausted++
}

func (m *MockMetricsRegistry) SetRealizedOTS(ots float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRealizedOTS = ots
}

func (m *MockMetricsRegistry) IncrementForecastCache(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForecastCache[outcome]++
}

func (m *MockMetricsRegistry) IncrementLedgerCommits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LedgerCommits++
}

func (m *MockMetricsRegistry) IncrementLedgerCommitErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LedgerCommitErrors++
}

// PlanCount returns how many plans were recorded for strategy/status.
func (m *MockMetricsRegistry) PlanCount(strategy, status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Plans[strategy+"/"+status]
}
