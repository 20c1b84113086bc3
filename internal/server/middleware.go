package server

import (
	"net/http"
	"time"
)

// recoverPanics turns a handler panic into a logged 500.
func (s *HTTPServer) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			s.logger.Error().
				Any("panic", p).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

// recordMetrics observes every request in vaultprops_http_requests_total
// and the latency histogram.
func (s *HTTPServer) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.config.Metrics.Server.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), sw.status, time.Since(start).Seconds())
	})
}

// normalizePath folds every path outside the route table into
// "unmatched" so the path label stays bounded.
func normalizePath(path string) string {
	switch path {
	case "/healthz", "/readyz", "/v1/properties", "/v1/refresh", "/metrics":
		return path
	default:
		return "unmatched"
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
