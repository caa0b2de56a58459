package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/patrickwarner/openslot/internal/config"
	"github.com/patrickwarner/openslot/internal/db"
	"github.com/patrickwarner/openslot/internal/forecasting"
	"github.com/patrickwarner/openslot/internal/models"
	"github.com/patrickwarner/openslot/internal/observability"
	"github.com/patrickwarner/openslot/internal/planner"
)

// ForecastSource loads forecasts for a set of screens and a window.
type ForecastSource interface {
	Load(ctx context.Context, screenIDs []int64, from, to time.Time) (models.Forecast, error)
}

// PlanStore persists the reservation ledger, screens and plans.
type PlanStore interface {
	LoadLedger(ctx context.Context, screenIDs []int64, from, to time.Time) (models.ReservationLedger, error)
	ImportReservations(ctx context.Context, ledger models.ReservationLedger) (int, error)
	LoadScreens(ctx context.Context) ([]models.Screen, error)
	UpsertScreens(ctx context.Context, screens []models.Screen) error
	SavePlan(ctx context.Context, plan *models.PlanResult) error
	LoadPlan(ctx context.Context, id string) (*models.PlanResult, bool, error)
}

// Committer reserves the slots of a stored plan.
type Committer interface {
	Commit(ctx context.Context, plan *models.PlanResult) (int64, error)
}

// Server groups dependencies for HTTP handlers. Forecasts, Store and Ledger
// may be nil; handlers then require the data inline or answer 503.
type Server struct {
	Logger    *zap.Logger
	Planner   *planner.Planner
	Forecasts ForecastSource
	Store     PlanStore
	Ledger    Committer
	Metrics   observability.MetricsRegistry
	Config    config.Config

	limiter  *rate.Limiter
	validate *validator.Validate
}

// NewServer constructs a Server. The /plan rate limit is taken from cfg.
func NewServer(logger *zap.Logger, p *planner.Planner, forecasts ForecastSource, store PlanStore, ledger Committer, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	limit := rate.Inf
	if cfg.PlanRateLimit > 0 {
		limit = rate.Limit(cfg.PlanRateLimit)
	}
	return &Server{
		Logger:    logger,
		Planner:   p,
		Forecasts: forecasts,
		Store:     store,
		Ledger:    ledger,
		Metrics:   metrics,
		Config:    cfg,
		limiter:   rate.NewLimiter(limit, max(cfg.PlanRateBurst, 1)),
		validate:  validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr *planner.ConfigurationError
	var missing *planner.MissingDataError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, planner.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, db.ErrPlanNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrPlanCommitted), errors.Is(err, db.ErrScreensLocked), errors.Is(err, db.ErrPlanNotSchedulable),
		errors.Is(err, db.ErrPlanConflict):
		return http.StatusConflict
	case errors.Is(err, forecasting.ErrUnavailable), errors.Is(err, errNoStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errNoStore = errors.New("plan store unavailable")

// fail logs and writes err. Internal errors are not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) int {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger(r).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
	return status
}
