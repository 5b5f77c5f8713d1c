package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"wardrobe-storage/internal/metrics"
)

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that are not recorded
	SkipPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz"},
	}
}

// Metrics returns a middleware that records Prometheus request metrics
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)
			start := time.Now()

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath replaces item ids with a placeholder so the path label stays
// low-cardinality: /api/items/abc/image becomes /api/items/{id}/image.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 && parts[1] == "api" && parts[2] == "items" && parts[3] != "" {
		parts[3] = "{id}"
		if len(parts) > 5 {
			parts = append(parts[:5], "{rest}")
		}
		return strings.Join(parts, "/")
	}
	if len(parts) > 4 {
		return strings.Join(append(parts[:4], "{rest}"), "/")
	}
	return path
}
