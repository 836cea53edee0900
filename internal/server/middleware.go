package server

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/casefile-ai/lexrag/internal/logging"
)

// statusRecorder captures the status code a handler writes so middleware can
// log and label it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with a fresh request_id, places a child
// logger carrying it into the request context, and logs one completion line
// with status and latency.
func requestLogger(base *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := base.With(
			slog.String("request_id", requestID()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		r = r.WithContext(logging.WithLogger(r.Context(), log))

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		log.Info("request",
			slog.Int("status", sr.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// instrument records per-handler Prometheus counters and latency. The handler
// label is a stable logical name, never the raw URL path.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		s.metrics.httpRequestsTotal.WithLabelValues(
			r.Method, handler, strconv.Itoa(sr.status),
		).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).
			Observe(time.Since(start).Seconds())
	})
}

// requestID returns 8 random bytes hex-encoded. crypto/rand failing is not
// survivable in any useful way, so the fallback is a fixed ID.
func requestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
