package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/patrickwarner/openslot/internal/middleware"
)

// Routes registers every handler on a new router. Callers add /metrics and
// the otel wrapper.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	plan := middleware.RateLimit(s.limiter, s.Metrics, "plan")(http.HandlerFunc(s.PlanHandler))
	r.Handle("/plan", plan).Methods(http.MethodPost)
	r.HandleFunc("/feasibility", s.FeasibilityHandler).Methods(http.MethodPost)
	r.HandleFunc("/plans/{id}", s.GetPlanHandler).Methods(http.MethodGet)
	r.HandleFunc("/plans/{id}/export", s.ExportPlanHandler).Methods(http.MethodGet)
	r.HandleFunc("/plans/{id}/commit", s.CommitPlanHandler).Methods(http.MethodPost)
	r.HandleFunc("/forecast", s.ImportForecastHandler).Methods(http.MethodPost)
	r.HandleFunc("/forecast", s.ExportForecastHandler).Methods(http.MethodGet)
	r.HandleFunc("/ledger/import", s.ImportLedgerHandler).Methods(http.MethodPost)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	return r
}

func (s *Server) observe(endpoint, method string, status int, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func (s *Server) logger(r *http.Request) *zap.Logger {
	return middleware.LoggerFromRequest(r, s.Logger)
}
