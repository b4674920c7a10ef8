package instrument

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessio-dev/sessio/pkg/session"
)

// Default tracer name for the session store.
const defaultTracerName = "sessio"

// TraceConfig configures the OpenTelemetry decorator.
type TraceConfig struct {
	// TracerName is the name of the tracer (default: "sessio").
	TracerName string

	// IncludeSessionID records the session id as a span attribute.
	// Session ids are bearer tokens - disabled by default.
	IncludeSessionID bool
}

// TraceOption configures the OpenTelemetry decorator.
type TraceOption func(*TraceConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TraceOption {
	return func(c *TraceConfig) {
		c.TracerName = name
	}
}

// WithIncludeSessionID enables recording session ids on spans.
func WithIncludeSessionID(include bool) TraceOption {
	return func(c *TraceConfig) {
		c.IncludeSessionID = include
	}
}

// tracingMap wraps a session.Map and emits one span per operation.
type tracingMap struct {
	next      session.Map
	tracer    trace.Tracer
	includeID bool
}

// Trace wraps a backend with OpenTelemetry tracing. The tracer comes from
// the global tracer provider; configure that in main() before serving.
func Trace(next session.Map, opts ...TraceOption) session.Map {
	cfg := TraceConfig{
		TracerName: defaultTracerName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &tracingMap{
		next:      next,
		tracer:    otel.Tracer(cfg.TracerName),
		includeID: cfg.IncludeSessionID,
	}
}

func (t *tracingMap) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "session."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("session.op", op)),
	)
	if t.includeID && id != "" {
		span.SetAttributes(attribute.String("session.id", id))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *tracingMap) List(ctx context.Context) ([]*session.Data, error) {
	ctx, span := t.start(ctx, "list", "")
	out, err := t.next.List(ctx)
	span.SetAttributes(attribute.Int("session.count", len(out)))
	finish(span, err)
	return out, err
}

func (t *tracingMap) Get(ctx context.Context, id string) (*session.Data, error) {
	ctx, span := t.start(ctx, "get", id)
	d, err := t.next.Get(ctx, id)
	span.SetAttributes(attribute.Bool("session.found", d != nil))
	finish(span, err)
	return d, err
}

func (t *tracingMap) Insert(ctx context.Context, id string, data *session.Data) error {
	ctx, span := t.start(ctx, "insert", id)
	err := t.next.Insert(ctx, id, data)
	finish(span, err)
	return err
}

func (t *tracingMap) Remove(ctx context.Context, id string) (bool, error) {
	ctx, span := t.start(ctx, "remove", id)
	ok, err := t.next.Remove(ctx, id)
	span.SetAttributes(attribute.Bool("session.found", ok))
	finish(span, err)
	return ok, err
}

func (t *tracingMap) RemoveExpired(ctx context.Context) (int, error) {
	ctx, span := t.start(ctx, "remove_expired", "")
	n, err := t.next.RemoveExpired(ctx)
	span.SetAttributes(attribute.Int("session.evicted", n))
	finish(span, err)
	return n, err
}

func (t *tracingMap) Clear(ctx context.Context) error {
	ctx, span := t.start(ctx, "clear", "")
	err := t.next.Clear(ctx)
	finish(span, err)
	return err
}
