// Package telemetry provides the ambient logging, metrics, and tracing
// interfaces used throughout the runtime. Implementations typically delegate
// to Clue/OpenTelemetry but the interfaces are intentionally small so tests
// can supply lightweight stubs or the no-op defaults in this package.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime. A Logger
// is passed in explicitly (model.DualClient takes one through Handles);
// nothing reaches for a package-level global (see the "Global mutable state"
// design note).
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime
// instrumentation (node transitions, tool invocations, endpoint failovers,
// sub-agent spawns).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Handles groups the three telemetry surfaces so components can be
// constructed with a single argument instead of three.
type Handles struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// Noop returns a Handles whose members discard everything. Used as the
// default when a caller does not configure telemetry explicitly.
func Noop() Handles {
	return Handles{Logger: NewNoopLogger(), Metrics: NewNoopMetrics(), Tracer: NewNoopTracer()}
}
