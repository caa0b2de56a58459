// Package planner turns advertising requests and a per screen-hour OTS
// forecast into a slot schedule. A call runs catalog building, the
// feasibility gate, chunk grouping, model building, solving and schedule
// assembly in that order.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/solver"
)

// Strategy names reported in results and metrics.
const (
	StrategyOptimal = "optimal"
	StrategyGreedy  = "greedy"
)

// Solver is the integer optimisation backend.
type Solver interface {
	Solve(ctx context.Context, m *solver.Model, params solver.Params) (*solver.Solution, error)
}

// Planner schedules request batches. It keeps no state between calls and
// is safe for concurrent use.
type Planner struct {
	opts    Options
	solver  Solver
	Logger  *zap.Logger
	Metrics observability.MetricsRegistry
}

// New validates opts and returns a Planner. A nil solver selects the
// built-in branch and bound solver; nil logger and metrics disable them.
func New(opts Options, s Solver, logger *zap.Logger, metrics observability.MetricsRegistry) (*Planner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	if s == nil {
		s = solver.New(logger.Named("solver"))
	}
	return &Planner{opts: opts, solver: s, Logger: logger, Metrics: metrics}, nil
}

// Options returns the planner configuration.
func (p *Planner) Options() Options { return p.opts }

// batch holds the gated catalog of one planning call.
type batch struct {
	slots    [][]EligibleSlot
	outcomes []models.RequestOutcome
	feasible bool
}

// prepare validates every request, then builds catalogs and runs the gate.
// All requests are validated before any catalog is built.
func (p *Planner) prepare(requests []models.AdvertisementRequest, forecast models.Forecast, ledger models.ReservationLedger) (*batch, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, req := range requests {
		if err := validateRequest(i, req, p.opts.Tiers); err != nil {
			return nil, err
		}
	}

	b := &batch{
		slots:    make([][]EligibleSlot, len(requests)),
		outcomes: make([]models.RequestOutcome, len(requests)),
		feasible: true,
	}
	maxTier := p.opts.Tiers.Max()
	for i, req := range requests {
		slots, err := BuildCatalog(i, req, forecast, ledger, p.opts)
		if err != nil {
			return nil, err
		}
		gate := CheckFeasibility(i, req.DesiredOTS, slots, maxTier)
		b.slots[i] = slots
		b.outcomes[i] = models.RequestOutcome{
			Index:         i,
			ID:            req.ID,
			DesiredOTS:    req.DesiredOTS,
			AvailableOTS:  gate.Available,
			EligibleSlots: len(slots),
			Feasible:      gate.Feasible,
		}
		if !gate.Feasible {
			b.feasible = false
		}
	}
	return b, nil
}

// Check runs catalog building and the feasibility gate only.
func (p *Planner) Check(ctx context.Context, requests []models.AdvertisementRequest, forecast models.Forecast, ledger models.ReservationLedger) ([]models.RequestOutcome, error) {
	_, span := observability.Tracer("planner").Start(ctx, "Planner.Check")
	defer span.End()

	b, err := p.prepare(requests, forecast, ledger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("planner.feasible", b.feasible))
	return b.outcomes, nil
}

// Plan schedules a batch of requests. Infeasibility is reported through the
// result status; errors are returned only for invalid requests, missing
// forecast data or a model the solver rejects.
func (p *Planner) Plan(ctx context.Context, requests []models.AdvertisementRequest, forecast models.Forecast, ledger models.ReservationLedger) (*models.PlanResult, error) {
	start := time.Now()
	ctx, span := observability.Tracer("planner").Start(ctx, "Planner.Plan")
	defer span.End()
	span.SetAttributes(attribute.Int("planner.requests", len(requests)))

	b, err := p.prepare(requests, forecast, ledger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid batch")
		return nil, err
	}

	result := p.newResult(StrategyOptimal, b)
	if !b.feasible {
		result.Status = models.PlanStatusAggregateInfeasible
		p.finish(result, start)
		p.Logger.Info("batch rejected by feasibility gate",
			zap.String("plan_id", result.ID),
			zap.Float64("available_ots", result.AvailableOTS),
		)
		return result, nil
	}

	var all []EligibleSlot
	desired := make([]float64, len(requests))
	for i, req := range requests {
		all = append(all, b.slots[i]...)
		desired[i] = req.DesiredOTS
	}
	chunks := GroupChunks(all, p.opts.ChunkSize)
	f, err := BuildModel(chunks, desired, p.opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model build failed")
		return nil, err
	}
	result.Variables = f.Model.NumVars()
	p.Metrics.RecordModelVariables(result.Variables)

	solveCtx, solveSpan := observability.Tracer("planner").Start(ctx, "Solver.Solve")
	sol, err := p.solver.Solve(solveCtx, f.Model, p.opts.Budget)
	solveSpan.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "solver rejected model")
		return nil, fmt.Errorf("solve: %w", err)
	}
	p.Metrics.RecordSolveDuration(sol.WallTime)
	if sol.BudgetExhausted {
		p.Metrics.IncrementSolverBudgetExhausted()
	}
	result.SolverSolutions = sol.Improvements
	result.BudgetExhausted = sol.BudgetExhausted

	if !sol.HasSolution() {
		result.Status = models.PlanStatusSolverInfeasible
		for i := range result.Requests {
			result.Requests[i].Feasible = false
		}
		p.finish(result, start)
		p.Logger.Info("no tier assignment meets the targets",
			zap.String("plan_id", result.ID),
			zap.Int("variables", result.Variables),
			zap.Bool("budget_exhausted", sol.BudgetExhausted),
		)
		return result, nil
	}

	a := AssembleSchedule(f, sol, len(requests), p.opts.Tiers.Max())
	result.Status = models.PlanStatusOptimal
	if sol.Status != solver.StatusOptimal {
		result.Status = models.PlanStatusFeasible
	}
	result.Schedule = a.Schedule
	result.RealizedOTS = models.RoundOTS(a.Total)
	result.ObjectiveValue = sol.ObjectiveValue
	for i := range result.Requests {
		result.Requests[i].RealizedOTS = a.Realized[i]
		result.Requests[i].Schedule = a.PerRequest[i]
	}
	p.Metrics.SetRealizedOTS(a.Total)
	p.finish(result, start)

	span.SetAttributes(
		attribute.String("planner.status", string(result.Status)),
		attribute.Int("planner.variables", result.Variables),
		attribute.Int64("planner.realized_ots", result.RealizedOTS),
	)
	p.Logger.Info("plan built",
		zap.String("plan_id", result.ID),
		zap.String("status", string(result.Status)),
		zap.Int("chunks", len(chunks)),
		zap.Int("constraints", f.Model.NumConstraints()),
		zap.Int64("realized_ots", result.RealizedOTS),
		zap.Int("solver_solutions", sol.Improvements),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (p *Planner) newResult(strategy string, b *batch) *models.PlanResult {
	r := &models.PlanResult{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		Requests:  b.outcomes,
		CreatedAt: time.Now().UTC(),
	}
	for _, o := range b.outcomes {
		r.AvailableOTS += o.AvailableOTS
	}
	return r
}

func (p *Planner) finish(r *models.PlanResult, start time.Time) {
	r.Elapsed = time.Since(start)
	r.ElapsedMS = r.Elapsed.Milliseconds()
	p.Metrics.IncrementPlans(r.Strategy, string(r.Status))
}
