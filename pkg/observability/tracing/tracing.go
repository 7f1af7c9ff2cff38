package tracing

import (
    "context"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/codes"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

var enabled atomic.Bool

// Setup configures a global tracer provider exporting to stdout when
// enable=true. It returns a shutdown function which should be deferred.
func Setup(enable bool) (func(context.Context) error, error) {
    enabled.Store(enable)
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// Span wraps an otel span; the zero value is a no-op.
type Span struct {
    span trace.Span
}

// StartSpan starts a tracing span if tracing is enabled.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
    if !enabled.Load() {
        return ctx, Span{}
    }
    ctx, sp := otel.Tracer("clusterdash").Start(ctx, name, trace.WithAttributes(attrs...))
    return ctx, Span{span: sp}
}

// End finishes the span, recording err when non-nil.
func (s Span) End(err error) {
    if s.span == nil { return }
    if err != nil {
        s.span.RecordError(err)
        s.span.SetStatus(codes.Error, err.Error())
    }
    s.span.End()
}

// SetAttributes annotates the span.
func (s Span) SetAttributes(attrs ...attribute.KeyValue) {
    if s.span == nil { return }
    s.span.SetAttributes(attrs...)
}
