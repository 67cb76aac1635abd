package observe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// testSetup creates metrics and a recording tracer for middleware tests.
func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

// sessionMux mimics the interview API routes.
func sessionMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /interviews/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /interviews/sessions/{id}/end", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}

type routeSample struct {
	route  string
	status int64
	count  uint64
}

func routeSamples(t *testing.T, reader *sdkmetric.ManualReader) []routeSample {
	t.Helper()
	met := findMetric(collect(t, reader), "intervox.http.request.duration")
	if met == nil {
		return nil
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data = %T, want histogram", met.Data)
	}
	var out []routeSample
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		out = append(out, routeSample{route: route.AsString(), status: status.AsInt64(), count: dp.Count})
	}
	return out
}

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m, reader, exp := testSetup(t)
	h := Middleware(m)(sessionMux())

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/interviews/sessions/a1", nil),
		httptest.NewRequest(http.MethodGet, "/interviews/sessions/b2", nil),
		httptest.NewRequest(http.MethodGet, "/interviews/sessions/missing", nil),
		httptest.NewRequest(http.MethodPost, "/interviews/sessions/a1/end", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	want := map[routeSample]bool{
		{route: "GET /interviews/sessions/{id}", status: 200, count: 2}:      true,
		{route: "GET /interviews/sessions/{id}", status: 404, count: 1}:      true,
		{route: "POST /interviews/sessions/{id}/end", status: 202, count: 1}: true,
		{route: "unmatched", status: 404, count: 1}:                          true,
	}
	got := routeSamples(t, reader)
	if len(got) != len(want) {
		t.Errorf("got %d series, want %d: %+v", len(got), len(want), got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected series %+v", s)
		}
	}

	spans := exp.GetSpans()
	if len(spans) != 5 {
		t.Fatalf("recorded %d spans, want 5", len(spans))
	}
	if spans[0].Name != "HTTP GET /interviews/sessions/{id}" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[2].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status attribute = %d, want 404", status)
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	m, _, _ := testSetup(t)

	tests := []struct {
		name        string
		traceparent string
		wantID      string
	}{
		{name: "new trace"},
		{
			name:        "incoming trace context",
			traceparent: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
			wantID:      "4bf92f3577b34da6a3ce929d0e0e4736",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/interviews/sets", nil)
			if tc.traceparent != "" {
				req.Header.Set("traceparent", tc.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id %q, want 32 hex chars", seen)
			}
			if tc.wantID != "" && seen != tc.wantID {
				t.Errorf("correlation id = %q, want %q", seen, tc.wantID)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
		})
	}
}

func TestMiddleware_Hijack(t *testing.T) {
	m, reader, _ := testSetup(t)

	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, buf, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 8\r\nConnection: close\r\n\r\nhijacked")
		_ = buf.Flush()
	}))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "hijacked" {
		t.Errorf("body = %q, want hijacked", body)
	}

	// The client can see the response before the middleware records it.
	deadline := time.Now().Add(2 * time.Second)
	got := routeSamples(t, reader)
	for len(got) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		got = routeSamples(t, reader)
	}
	if len(got) != 1 || got[0].status != http.StatusSwitchingProtocols {
		t.Errorf("series = %+v, want one sample with status 101", got)
	}
}

func TestStatusRecorder_Unwrap(t *testing.T) {
	m, _, _ := testSetup(t)

	deadlineErr := make(chan error, 1)
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		deadlineErr <- http.NewResponseController(w).SetWriteDeadline(time.Now().Add(time.Minute))
	}))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if err := <-deadlineErr; err != nil {
		t.Errorf("SetWriteDeadline through the middleware: %v", err)
	}

	// A writer that cannot hijack reports it instead of panicking.
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack on a plain recorder should fail")
	}
	if err := http.NewResponseController(rec).SetWriteDeadline(time.Now()); !errors.Is(err, http.ErrNotSupported) {
		t.Errorf("SetWriteDeadline = %v, want ErrNotSupported", err)
	}
}
