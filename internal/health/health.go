// Package health serves the liveness and readiness endpoints of the
// interview server.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs the
// registered checks concurrently and answers:
//
//   - 200 "ok" when every check passes,
//   - 200 "degraded" when only optional checks fail (interviews still run,
//     e.g. a secondary report store is down),
//   - 503 "fail" when a required check fails,
//   - 503 "draining" once shutdown has begun.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
	StatusDraining = "draining"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// Checker is one named readiness check.
type Checker struct {
	// Name is the key under "checks" in the /readyz body, e.g.
	// "question_sets" or "report_store".
	Name string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional checks degrade readiness instead of failing it.
	Optional bool
}

// Report is the JSON body of both endpoints.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The check list is fixed at
// construction; SetDraining may be called concurrently.
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

// New returns a Handler running checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// SetDraining flips /readyz to 503 so no new interviews are routed here.
// Running sessions are unaffected.
func (h *Handler) SetDraining(v bool) { h.draining.Store(v) }

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz evaluates every check and writes the aggregate [Report].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, Report{Status: StatusDraining})
		return
	}
	rep := h.Evaluate(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// Evaluate runs all checks concurrently, each under its own timeout.
func (h *Handler) Evaluate(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rep.Checks[c.Name] = StatusOK
			case c.Optional:
				rep.Checks[c.Name] = StatusDegraded + ": " + err.Error()
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			default:
				rep.Checks[c.Name] = StatusFail + ": " + err.Error()
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
