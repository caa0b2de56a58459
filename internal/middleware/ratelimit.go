package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/patrickwarner/openslot/internal/observability"
)

// RateLimit rejects requests with 429 once l has no tokens left. Rejections
// are counted under endpoint.
func RateLimit(l *rate.Limiter, metrics observability.MetricsRegistry, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && !l.Allow() {
				if metrics != nil {
					metrics.IncrementRequests(endpoint, r.Method, "429")
				}
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
