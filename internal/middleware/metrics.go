// internal/middleware/metrics.go
package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/campaign-dispatch/internal/metrics"
)

// Metrics records request counts and durations for every route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		method := r.Method
		status := strconv.Itoa(ww.Status())

		metrics.RequestCount.WithLabelValues(path, method, status).Inc()
		metrics.RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	})
}
