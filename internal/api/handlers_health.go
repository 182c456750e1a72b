package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/trading-grow/internal/logging"
)

const readinessTimeout = 2 * time.Second

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trading-grow",
		"version": s.config.Version,
	})
}

// handleLive reports that the process is serving
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

type checkResult struct {
	name string
	err  error
}

// handleReady pings every readiness dependency concurrently and answers 503
// if any of them fails
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	p := pool.NewWithResults[checkResult]()
	for _, name := range names {
		pinger := s.checks[name]
		p.Go(func() checkResult {
			return checkResult{name: name, err: pinger.Ping(ctx)}
		})
	}

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, result := range p.Wait() {
		if result.err != nil {
			status = http.StatusServiceUnavailable
			checks[result.name] = "unavailable"
			logging.FromContext(r.Context()).WithError(result.err).
				WithField("dependency", result.name).Warn("readiness check failed")
			continue
		}
		checks[result.name] = "ok"
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not_ready"
	}
	respondJSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": checks,
	})
}
