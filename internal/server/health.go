package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/casefile-ai/lexrag/internal/logging"
)

// probeTimeout caps each dependency probe so /api/ready answers promptly
// even when a dependency hangs instead of refusing.
const probeTimeout = 5 * time.Second

// Pinger is a dependency that can report its own reachability: nil means
// healthy, a descriptive error means not. Implementations must tolerate
// concurrent calls.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness output, e.g. "qdrant".
	Name() string
}

// MultiPinger folds several Pingers into one.
type MultiPinger struct {
	pingers []Pinger
}

func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping probes in registration order and stops at the first failure, wrapping
// it with the failing dependency's name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's probe result within a readiness response.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleHealth is the liveness probe: the process is up, nothing more.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady is the readiness probe. Every registered Pinger runs under its
// own timeout; any failure drops the response to 503 but the remaining
// dependencies are still probed so the body shows the full picture.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true}
	for _, p := range s.pingers {
		check := probe(r.Context(), p)
		if !check.OK {
			resp.Ready = false
			log.Warn("readiness probe failed",
				slog.String("dependency", check.Name),
				slog.String("error", check.Error),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ready encode error", slog.Any("error", err))
	}
}

// probe runs a single dependency check under probeTimeout.
func probe(ctx context.Context, p Pinger) readyCheck {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	check := readyCheck{Name: p.Name(), OK: true}
	if err := p.Ping(probeCtx); err != nil {
		check.OK = false
		check.Error = err.Error()
	}
	return check
}
