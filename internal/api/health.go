package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// pinger is implemented by backing stores that can report liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse reports the planner settings and the state of each
// configured backing store.
type HealthResponse struct {
	Status       string            `json:"status"`
	MaxTier      int               `json:"max_tier"`
	ChunkSize    int               `json:"chunk_size"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthHandler pings the configured stores. Any failing dependency turns
// the response into a 503 with status "degraded".
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "health"
	method := r.Method

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	opts := s.Planner.Options()
	resp := HealthResponse{Status: "ok", MaxTier: opts.Tiers.Max(), ChunkSize: opts.ChunkSize}
	deps := map[string]any{"forecasts": s.Forecasts, "store": s.Store}
	for name, dep := range deps {
		p, ok := dep.(pinger)
		if !ok {
			continue
		}
		if resp.Dependencies == nil {
			resp.Dependencies = make(map[string]string)
		}
		if err := p.Ping(ctx); err != nil {
			s.logger(r).Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Dependencies[name] = "down"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
	s.observe(endpoint, method, status, start)
}
