package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func pass(context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func get(t *testing.T, h http.Handler, path string) (int, Report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("%s Content-Type = %q", path, ct)
	}
	var rep Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("%s: decode: %v", path, err)
	}
	return rec.Code, rep
}

func serve(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "question_sets", Check: failWith("no active question sets")})
	h.SetDraining(true)
	code, rep := get(t, serve(h), "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK {
		t.Errorf("/healthz = %d %q, want 200 ok regardless of checks", code, rep.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "question_sets", Check: pass},
				{Name: "report_store", Check: pass},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"question_sets": "ok", "report_store": "ok"},
		},
		{
			name: "required check fails",
			checkers: []Checker{
				{Name: "question_sets", Check: failWith("no active question sets")},
				{Name: "report_store", Check: pass},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{
				"question_sets": "fail: no active question sets",
				"report_store":  "ok",
			},
		},
		{
			name: "optional check fails",
			checkers: []Checker{
				{Name: "question_sets", Check: pass},
				{Name: "report_store", Check: failWith("dial tcp: refused"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"report_store": "degraded: dial tcp: refused"},
		},
		{
			name: "required failure outranks degraded",
			checkers: []Checker{
				{Name: "question_sets", Check: failWith("no active question sets")},
				{Name: "report_store", Check: failWith("dial tcp: refused"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, rep := get(t, serve(New(tc.checkers...)), "/readyz")
			if code != tc.wantCode || rep.Status != tc.wantStatus {
				t.Errorf("/readyz = %d %q, want %d %q", code, rep.Status, tc.wantCode, tc.wantStatus)
			}
			if len(rep.Checks) != len(tc.checkers) {
				t.Errorf("checks = %v, want %d entries", rep.Checks, len(tc.checkers))
			}
			for name, want := range tc.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("checks[%s] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_Draining(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := New(Checker{Name: "question_sets", Check: func(context.Context) error {
		calls.Add(1)
		return nil
	}})
	mux := serve(h)

	h.SetDraining(true)
	code, rep := get(t, mux, "/readyz")
	if code != http.StatusServiceUnavailable || rep.Status != StatusDraining {
		t.Errorf("draining /readyz = %d %q, want 503 draining", code, rep.Status)
	}
	if calls.Load() != 0 {
		t.Error("checks ran while draining")
	}

	h.SetDraining(false)
	if code, _ := get(t, mux, "/readyz"); code != http.StatusOK {
		t.Errorf("/readyz after draining cleared = %d, want 200", code)
	}
}

func TestEvaluate_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	const n = 4
	var started atomic.Int32
	release := make(chan struct{})
	checkers := make([]Checker, n)
	for i := range checkers {
		checkers[i] = Checker{Name: string(rune('a' + i)), Check: func(ctx context.Context) error {
			if started.Add(1) == n {
				close(release)
			}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}
	}

	done := make(chan Report, 1)
	go func() { done <- New(checkers...).Evaluate(t.Context()) }()
	select {
	case rep := <-done:
		if rep.Status != StatusOK {
			t.Errorf("status = %q, checks %v", rep.Status, rep.Checks)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("checks did not run concurrently")
	}
}

func TestEvaluate_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	rep := New(Checker{Name: "report_store", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}).Evaluate(ctx)
	if rep.Status != StatusFail || rep.Checks["report_store"] != "fail: context canceled" {
		t.Errorf("report = %+v, want report_store failed with context canceled", rep)
	}
}
