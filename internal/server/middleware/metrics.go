package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// HTTPRecorder receives one observation per served request.
type HTTPRecorder interface {
	HTTPRequest(method, route, status string, seconds float64)
}

// Metrics returns middleware that records request counts and latency. The
// route label uses the mux pattern when available so per-ID paths do not
// explode label cardinality.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			rec.HTTPRequest(r.Method, route, strconv.Itoa(rw.statusCode), time.Since(start).Seconds())
		})
	}
}
