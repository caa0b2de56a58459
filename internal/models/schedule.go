package models

import (
	"math"
	"time"
)

// ScheduleEntry is the assignment for a single screen-hour.
type ScheduleEntry struct {
	Slots int     `json:"slots"`
	OTS   float64 `json:"ots"`
}

// Schedule maps screen ID -> hour timestamp -> assignment.
type Schedule map[int64]map[int64]ScheduleEntry

// Add merges an entry into the schedule, summing with any existing entry for
// the same screen-hour.
func (s Schedule) Add(screenID, hourTS int64, e ScheduleEntry) {
	hours, ok := s[screenID]
	if !ok {
		hours = make(map[int64]ScheduleEntry)
		s[screenID] = hours
	}
	cur := hours[hourTS]
	cur.Slots += e.Slots
	cur.OTS += e.OTS
	hours[hourTS] = cur
}

// Entry returns the assignment for a screen-hour and whether it exists.
func (s Schedule) Entry(screenID, hourTS int64) (ScheduleEntry, bool) {
	e, ok := s[screenID][hourTS]
	return e, ok
}

// TotalOTS sums realized OTS across all entries.
func (s Schedule) TotalOTS() float64 {
	var total float64
	for _, hours := range s {
		for _, e := range hours {
			total += e.OTS
		}
	}
	return total
}

// Len returns the number of screen-hour entries.
func (s Schedule) Len() int {
	n := 0
	for _, hours := range s {
		n += len(hours)
	}
	return n
}

// PlanStatus is the outcome of a planning call.
type PlanStatus string

const (
	// PlanStatusOptimal means the solver proved the schedule optimal.
	PlanStatusOptimal PlanStatus = "optimal"
	// PlanStatusFeasible means the solver budget ran out; the schedule is the
	// best one found and meets every target but is not proven optimal.
	PlanStatusFeasible PlanStatus = "feasible"
	// PlanStatusAggregateInfeasible means at least one request asks for more
	// OTS than its eligible slots could deliver even at full remaining
	// capacity. The solver was not invoked.
	PlanStatusAggregateInfeasible PlanStatus = "aggregate_infeasible"
	// PlanStatusSolverInfeasible means supply was sufficient in aggregate but
	// no assignment of standard tiers meets every target (or none was found
	// within budget).
	PlanStatusSolverInfeasible PlanStatus = "solver_infeasible"
)

// HasSchedule reports whether results with this status carry a schedule.
func (s PlanStatus) HasSchedule() bool {
	return s == PlanStatusOptimal || s == PlanStatusFeasible
}

// RequestOutcome reports per-request figures of a planning call.
type RequestOutcome struct {
	Index         int      `json:"index"`
	ID            string   `json:"id,omitempty"`
	DesiredOTS    float64  `json:"desired_ots"`
	AvailableOTS  float64  `json:"available_ots"`
	RealizedOTS   float64  `json:"realized_ots"`
	EligibleSlots int      `json:"eligible_slots"`
	Feasible      bool     `json:"feasible"`
	Schedule      Schedule `json:"schedule,omitempty"`
}

// PlanResult is the structured outcome of a planning call. Infeasibility is
// reported through Status, never as an error.
type PlanResult struct {
	ID       string     `json:"id"`
	Status   PlanStatus `json:"status"`
	Strategy string     `json:"strategy"`
	// Schedule is nil unless Status.HasSchedule().
	Schedule Schedule `json:"schedule"`
	// RealizedOTS is the aggregate realized OTS rounded for reporting.
	RealizedOTS int64 `json:"realized_ots"`
	// AvailableOTS is the sum of the per-request gate figures.
	AvailableOTS    float64          `json:"available_ots"`
	Requests        []RequestOutcome `json:"requests"`
	Variables       int              `json:"variables"`
	ObjectiveValue  int64            `json:"objective_value,omitempty"`
	SolverSolutions int              `json:"solver_solutions,omitempty"`
	BudgetExhausted bool             `json:"budget_exhausted"`
	Elapsed         time.Duration    `json:"-"`
	ElapsedMS       int64            `json:"elapsed_ms"`
	CreatedAt       time.Time        `json:"created_at"`
}

// RoundOTS rounds a realized OTS figure for reporting.
func RoundOTS(v float64) int64 {
	return int64(math.Round(v))
}
