package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/intervox"

type sessionKey struct{}

// WithSessionID returns a context that tags spans and log lines with the
// interview session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the interview session id carried by ctx, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// StartSpan starts a span on the global tracer provider. Spans started under
// a session context carry a session.id attribute. The caller must end the
// span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String("session.id", id)))
	}
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
// HTTP responses echo it in X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with session_id, trace_id and span_id
// added when ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := SessionID(ctx); id != "" {
		l = l.With(slog.String("session_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
