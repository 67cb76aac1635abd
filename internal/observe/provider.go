package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig configures the process-wide telemetry.
type ProviderConfig struct {
	// ServiceName defaults to "intervox".
	ServiceName string

	// ServiceVersion is the build version, "dev" when empty.
	ServiceVersion string

	// InstanceID identifies this server process in target_info. A random
	// UUID is used when empty.
	InstanceID string

	// Registerer receives the Prometheus collector. Default:
	// [prometheus.DefaultRegisterer], which the /metrics handler serves.
	Registerer prometheus.Registerer

	// TraceExporter receives finished spans. When nil spans are sampled but
	// not exported.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs global meter and tracer providers. Metrics are
// exported through Prometheus, so [DefaultMetrics] created afterwards are
// scraped from /metrics together with a target_info series describing the
// service. The returned function flushes and closes both providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "intervox"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceInstanceID(cfg.InstanceID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	var promOpts []promexporter.Option
	if cfg.Registerer != nil {
		promOpts = append(promOpts, promexporter.WithRegisterer(cfg.Registerer))
	}
	promExp, err := promexporter.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	Logger(ctx).Debug("telemetry initialised",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"instance", cfg.InstanceID,
	)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
