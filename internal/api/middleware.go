// internal/api/middleware.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/metrics"
	"eservices-portal/internal/common/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// instrument records per-request duration and outcome against the route
// pattern, not the raw path, so ids do not explode label cardinality.
func instrument(log logger.Logger, obs *observability.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(ww.Status())
			elapsed := time.Since(start)

			metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, status).
				Observe(elapsed.Seconds())
			if obs != nil {
				obs.RecordRequest(r.Context(), route, status)
				obs.RecordRequestDuration(r.Context(), elapsed, route)
			}

			log.Debug("request handled", map[string]interface{}{
				"method":   r.Method,
				"route":    route,
				"status":   ww.Status(),
				"duration": elapsed.String(),
			})
		})
	}
}
