// Package observe provides application-wide observability primitives for
// intervox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all intervox metrics.
const meterName = "github.com/MrWong99/intervox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Interview sessions ---

	// ActiveSessions tracks the number of running interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionsCompleted counts finished sessions. Use with attribute:
	//   attribute.String("reason", ...)
	SessionsCompleted metric.Int64Counter

	// Utterances counts recognised candidate utterances. Use with attribute:
	//   attribute.String("intent", ...)
	Utterances metric.Int64Counter

	// ListenRestarts counts capture attempts that ended without an utterance
	// and were re-armed. Use with attribute:
	//   attribute.String("cause", ...)
	ListenRestarts metric.Int64Counter

	// --- Speech output ---

	// TTSFallbacks counts agent lines rendered by local synthesis because the
	// remote voice could not be used.
	TTSFallbacks metric.Int64Counter

	// SpeakDuration tracks how long an agent line took from request to the
	// end of playback.
	SpeakDuration metric.Float64Histogram

	// --- Providers ---

	// ProviderDuration tracks provider call latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderDuration metric.Float64Histogram

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// speakBuckets covers whole spoken lines, which run for seconds.
var speakBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 13, 21, 34,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Sessions.
	if met.ActiveSessions, err = m.Int64UpDownCounter("intervox.sessions.active",
		metric.WithDescription("Number of running interview sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("intervox.sessions.completed",
		metric.WithDescription("Finished interview sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("intervox.utterances",
		metric.WithDescription("Recognised candidate utterances by interpreted intent."),
	); err != nil {
		return nil, err
	}
	if met.ListenRestarts, err = m.Int64Counter("intervox.listen.restarts",
		metric.WithDescription("Capture attempts re-armed after hearing nothing, by cause."),
	); err != nil {
		return nil, err
	}

	// Speech output.
	if met.TTSFallbacks, err = m.Int64Counter("intervox.tts.fallbacks",
		metric.WithDescription("Agent lines rendered by local synthesis."),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("intervox.speak.duration",
		metric.WithDescription("Time from requesting an agent line to the end of its playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speakBuckets...),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderDuration, err = m.Float64Histogram("intervox.provider.duration",
		metric.WithDescription("Latency of provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("intervox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("intervox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider call: one request counter
// increment and one latency sample.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string, seconds float64) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	m.ProviderDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordUtterance counts one recognised candidate utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, intent string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("intent", intent)))
}

// RecordListenRestart counts one re-armed capture attempt.
func (m *Metrics) RecordListenRestart(ctx context.Context, cause string) {
	m.ListenRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordSessionEnd counts a finished session and removes it from the active
// gauge.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
