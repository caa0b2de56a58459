// Package solver implements a small finite-domain integer optimiser: linear
// constraints over variables with enumerated domains and a linear objective
// to minimise. Models are encoded as pseudo-boolean problems (one literal
// per variable value) and solved with gophersat under an explicit time and
// solution budget.
package solver

import (
	"context"
	"fmt"
	"sync"
	"time"

	gsolver "github.com/crillab/gophersat/solver"
	"go.uber.org/zap"
)

// Status is the outcome of a Solve call.
type Status int

const (
	StatusUnknown Status = iota
	// StatusOptimal means the search completed and the solution is proven optimal.
	StatusOptimal
	// StatusFeasible means the budget ran out after a solution was found.
	StatusFeasible
	// StatusInfeasible means no solution exists or none was found within budget.
	StatusInfeasible
	StatusModelInvalid
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "OPTIMAL"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusModelInvalid:
		return "MODEL_INVALID"
	default:
		return "UNKNOWN"
	}
}

// Params bounds the search. Zero values mean unlimited.
type Params struct {
	TimeLimit time.Duration
	// SolutionLimit stops the search after that many improving solutions.
	SolutionLimit int
}

// stopGrace is how long Solve waits for the search to notice a stop request
// before returning the best solution seen without it.
const stopGrace = time.Second

// Solution is the result of a Solve call. Values are only meaningful when
// Status is StatusOptimal or StatusFeasible.
type Solution struct {
	Status          Status
	ObjectiveValue  int64
	BudgetExhausted bool
	// Improvements counts the improving solutions found during the search.
	Improvements int
	WallTime     time.Duration

	values []int64
}

// Value returns the value assigned to v.
func (s *Solution) Value(v *IntVar) int64 {
	if s == nil || v == nil || v.index >= len(s.values) {
		return 0
	}
	return s.values[v.index]
}

// HasSolution reports whether the solution carries variable values.
func (s *Solution) HasSolution() bool {
	return s != nil && (s.Status == StatusOptimal || s.Status == StatusFeasible)
}

// Solver optimises Models. It holds no per-call state and is safe for
// concurrent use.
type Solver struct {
	Logger *zap.Logger
}

// New returns a Solver. A nil logger disables logging.
func New(logger *zap.Logger) *Solver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{Logger: logger}
}

// Solve searches for a minimum-objective assignment. Context cancellation is
// treated like budget exhaustion: the best solution found so far is returned.
// An error is returned only for invalid models.
func (s *Solver) Solve(ctx context.Context, m *Model, params Params) (*Solution, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return &Solution{Status: StatusModelInvalid}, err
	}

	enc := encode(m)
	if enc.infeasible {
		s.Logger.Debug("model infeasible before search", zap.Int("vars", len(m.vars)))
		return &Solution{Status: StatusInfeasible, WallTime: time.Since(start)}, nil
	}
	if len(m.vars) == 0 {
		for _, c := range m.constraints {
			if c.lower > 0 {
				return &Solution{Status: StatusInfeasible, WallTime: time.Since(start)}, nil
			}
		}
		return &Solution{Status: StatusOptimal, ObjectiveValue: m.objective.Offset, WallTime: time.Since(start)}, nil
	}

	best, improvements, exhausted := s.search(ctx, enc, params)
	sol := &Solution{
		Status:          StatusInfeasible,
		BudgetExhausted: exhausted,
		Improvements:    improvements,
	}
	if best != nil {
		for _, c := range m.constraints {
			if eval(c.terms, best) < c.lower {
				return nil, fmt.Errorf("internal error: constraint %q violated by solution", c.name)
			}
		}
		sol.Status = StatusOptimal
		if exhausted {
			sol.Status = StatusFeasible
		}
		sol.ObjectiveValue = eval(m.objective.Terms, best) + m.objective.Offset
		sol.values = best
	}
	sol.WallTime = time.Since(start)

	s.Logger.Debug("solve finished",
		zap.Stringer("status", sol.Status),
		zap.Int64("objective", sol.ObjectiveValue),
		zap.Int("improvements", sol.Improvements),
		zap.Int("literals", enc.nLits),
		zap.Duration("wall_time", sol.WallTime),
	)
	return sol, nil
}

// search runs gophersat's optimisation loop and keeps the best decoded
// assignment. exhausted is true when the loop was stopped before it proved
// optimality.
func (s *Solver) search(ctx context.Context, enc *encoding, params Params) (best []int64, improvements int, exhausted bool) {
	pbs := gsolver.New(enc.problem())
	results := make(chan gsolver.Result)
	stop := make(chan struct{})
	done := make(chan gsolver.Result, 1)
	go func() { done <- pbs.Optimal(results, stop) }()

	var once sync.Once
	halt := func() {
		once.Do(func() {
			exhausted = true
			close(stop)
		})
	}
	var deadline <-chan time.Time
	if params.TimeLimit > 0 {
		t := time.NewTimer(params.TimeLimit)
		defer t.Stop()
		deadline = t.C
	}
	keep := func(r gsolver.Result) {
		if r.Status != gsolver.Sat {
			return
		}
		if values, ok := enc.decode(r.Model); ok {
			best = values
		}
	}

	var grace <-chan time.Time
	ctxDone := ctx.Done()
	for {
		select {
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if r.Status == gsolver.Sat {
				improvements++
				keep(r)
				if params.SolutionLimit > 0 && improvements >= params.SolutionLimit {
					halt()
				}
			}
		case r := <-done:
			keep(r)
			return best, improvements, exhausted
		case <-deadline:
			deadline = nil
			halt()
			grace = time.After(stopGrace)
		case <-ctxDone:
			ctxDone = nil
			halt()
			grace = time.After(stopGrace)
		case <-grace:
			// leave the search to finish on its own
			go func() {
				for {
					select {
					case _, ok := <-results:
						if !ok {
							results = nil
						}
					case <-done:
						return
					}
				}
			}()
			s.Logger.Warn("solver did not stop within grace period", zap.Duration("grace", stopGrace))
			return best, improvements, exhausted
		}
	}
}

func eval(terms []Term, values []int64) int64 {
	var sum int64
	for _, t := range terms {
		sum += t.Coef * values[t.Var.index]
	}
	return sum
}
