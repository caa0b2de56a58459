package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/planner"
)

// PlanRequest is the body of POST /plan and POST /feasibility. Forecast and
// Ledger are loaded from the stores when omitted.
type PlanRequest struct {
	Requests []models.AdvertisementRequest `json:"requests" validate:"required,min=1"`
	Forecast models.Forecast               `json:"forecast,omitempty"`
	Ledger   models.ReservationLedger      `json:"ledger,omitempty"`
	Strategy string                        `json:"strategy,omitempty" validate:"omitempty,oneof=optimal greedy"`
	Commit   bool                          `json:"commit,omitempty"`
}

// PlanResponse wraps a plan with its commit outcome.
type PlanResponse struct {
	Plan         *models.PlanResult `json:"plan"`
	Stored       bool               `json:"stored"`
	Committed    bool               `json:"committed"`
	CommitHours  int64              `json:"commit_hours,omitempty"`
	CommitFailed string             `json:"commit_error,omitempty"`
}

// FeasibilityResponse is the body returned by POST /feasibility.
type FeasibilityResponse struct {
	Feasible bool                    `json:"feasible"`
	Requests []models.RequestOutcome `json:"requests"`
}

// inputs resolves the forecast and ledger of a batch, loading whatever the
// caller did not send inline.
func (s *Server) inputs(ctx context.Context, body *PlanRequest) (models.Forecast, models.ReservationLedger, error) {
	forecast, ledger := body.Forecast, body.Ledger
	if forecast != nil && ledger != nil {
		return forecast, ledger, nil
	}
	ids, from, to := models.Window(body.Requests)
	if forecast == nil {
		if s.Forecasts == nil {
			return nil, nil, fmt.Errorf("load forecast: %w", errNoStore)
		}
		var err error
		if forecast, err = s.Forecasts.Load(ctx, ids, from, to); err != nil {
			return nil, nil, fmt.Errorf("load forecast: %w", err)
		}
	}
	if ledger == nil && s.Store != nil {
		var err error
		if ledger, err = s.Store.LoadLedger(ctx, ids, from, to); err != nil {
			return nil, nil, fmt.Errorf("load ledger: %w", err)
		}
	}
	return forecast, ledger, nil
}

func (s *Server) decodePlanRequest(r *http.Request) (*PlanRequest, error) {
	var body PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := s.validate.Struct(&body); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &body, nil
}

// PlanHandler schedules a batch of requests, stores the result and, when
// asked, commits it to the reservation ledger.
func (s *Server) PlanHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "plan"
	method := r.Method
	ctx := r.Context()
	logger := s.logger(r)

	body, err := s.decodePlanRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	if body.Strategy == "" {
		body.Strategy = planner.StrategyOptimal
	}
	if body.Commit && (s.Store == nil || s.Ledger == nil) {
		s.observe(endpoint, method, s.fail(w, r, fmt.Errorf("commit: %w", errNoStore)), start)
		return
	}

	forecast, ledger, err := s.inputs(ctx, body)
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}

	var result *models.PlanResult
	if body.Strategy == planner.StrategyGreedy {
		result, err = s.Planner.Greedy(ctx, body.Requests, forecast, ledger)
	} else {
		result, err = s.Planner.Plan(ctx, body.Requests, forecast, ledger)
	}
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}

	resp := PlanResponse{Plan: result}
	if s.Store != nil {
		if err := s.Store.SavePlan(ctx, result); err != nil {
			s.observe(endpoint, method, s.fail(w, r, err), start)
			return
		}
		resp.Stored = true
	}
	if body.Commit && result.Status.HasSchedule() {
		hours, err := s.Ledger.Commit(ctx, result)
		if err != nil {
			// the plan is stored and can be committed later
			logger.Warn("commit plan", zap.String("plan_id", result.ID), zap.Error(err))
			resp.CommitFailed = err.Error()
		} else {
			resp.Committed = true
			resp.CommitHours = hours
		}
	}

	writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, method, http.StatusOK, start)

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("plan served",
			zap.String("plan_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.String("strategy", result.Strategy),
			zap.Int("requests", len(body.Requests)),
			zap.Bool("committed", resp.Committed),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// FeasibilityHandler runs only the aggregate feasibility gate.
func (s *Server) FeasibilityHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "feasibility"
	method := r.Method

	body, err := s.decodePlanRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		s.observe(endpoint, method, http.StatusBadRequest, start)
		return
	}
	forecast, ledger, err := s.inputs(r.Context(), body)
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}
	outcomes, err := s.Planner.Check(r.Context(), body.Requests, forecast, ledger)
	if err != nil {
		s.observe(endpoint, method, s.fail(w, r, err), start)
		return
	}
	resp := FeasibilityResponse{Feasible: true, Requests: outcomes}
	for _, o := range outcomes {
		if !o.Feasible {
			resp.Feasible = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, method, http.StatusOK, start)
}
