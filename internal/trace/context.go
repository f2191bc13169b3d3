package trace

import (
	"context"
	"time"
)

type ctxKey struct{}

// FromContext returns the tracer in ctx, or Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(ctxKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches t to ctx.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// SpanContext is what child spans and points inherit: the enclosing span
// and the link position.
type SpanContext struct {
	SpanID uint64
	Attrs
}

type spanCtxKey struct{}

// CurrentSpan returns the span context in ctx, or the zero value.
func CurrentSpan(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	if sc, ok := ctx.Value(spanCtxKey{}).(SpanContext); ok {
		return sc
	}
	return SpanContext{}
}

func withSpanContext(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, spanCtxKey{}, sc)
}

// WithStage tags every span and point opened under ctx with a pipeline
// stage.
func WithStage(ctx context.Context, stage string) context.Context {
	sc := CurrentSpan(ctx)
	sc.Stage = stage
	return withSpanContext(ctx, sc)
}

// WithModule tags every span and point opened under ctx with a module.
func WithModule(ctx context.Context, module string) context.Context {
	sc := CurrentSpan(ctx)
	sc.Module = module
	return withSpanContext(ctx, sc)
}

// StartSpan opens a span under the span carried by ctx and returns a
// context carrying the new one.
func StartSpan(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	parent := CurrentSpan(ctx)
	span := Begin(FromContext(ctx), scope, name, parent)
	if span.ID() == 0 {
		return ctx, span
	}
	return withSpanContext(ctx, SpanContext{SpanID: span.ID(), Attrs: parent.Attrs}), span
}

// Point emits an instant event under the span carried by ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return
	}
	sc := CurrentSpan(ctx)
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: sc.SpanID,
		GID:      goroutineID(),
		Name:     name,
		Detail:   detail,
		Extra:    sc.Attrs.merge(nil),
	})
}
