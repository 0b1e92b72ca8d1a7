package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/km-arc/go-resolve/framework/events"
	"github.com/km-arc/go-resolve/framework/resolution"
)

// DefaultTracerName is used when NewTraceListener gets no tracer.
const DefaultTracerName = "github.com/km-arc/go-resolve"

// TraceListener opens a span on every pre event and ends it on the matching
// post event. Nested resolves of one call become child spans.
type TraceListener struct {
	tracer trace.Tracer

	mu    sync.Mutex
	open  map[uint64]openSpan
	calls map[resolution.CallID][]context.Context
}

type openSpan struct {
	span trace.Span
	call resolution.CallID
}

// NewTraceListener uses tracer, or the global provider's tracer when nil.
func NewTraceListener(tracer trace.Tracer) *TraceListener {
	if tracer == nil {
		tracer = otel.Tracer(DefaultTracerName)
	}
	return &TraceListener{
		tracer: tracer,
		open:   make(map[uint64]openSpan),
		calls:  make(map[resolution.CallID][]context.Context),
	}
}

func (t *TraceListener) OnEvent(ev events.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ev.Stage == events.Pre {
		t.start(ev)
		return nil
	}
	t.end(ev)
	return nil
}

func (t *TraceListener) start(ev events.Event) {
	parent := context.Background()
	nested := ev.Kind == events.Resolve
	if nested {
		if stack := t.calls[ev.Call]; len(stack) > 0 {
			parent = stack[len(stack)-1]
		}
	}
	ctx, span := t.tracer.Start(parent, string(ev.Kind)+" "+ev.Key.String(),
		trace.WithAttributes(
			attribute.String("resolve.key", ev.Key.String()),
			attribute.Int64("resolve.entry", int64(ev.EntryID)),
			attribute.String("resolve.lifetime", ev.Lifetime),
			attribute.String("resolve.scope", ev.Scope),
			attribute.String("resolve.container", ev.ContainerID),
			attribute.String("resolve.container_tag", ev.ContainerTag),
		),
	)
	t.open[ev.Seq] = openSpan{span: span, call: ev.Call}
	if nested {
		t.calls[ev.Call] = append(t.calls[ev.Call], ctx)
		span.SetAttributes(attribute.String("resolve.call", ev.Call.String()))
	}
}

func (t *TraceListener) end(ev events.Event) {
	o, ok := t.open[ev.Seq]
	if !ok {
		return
	}
	delete(t.open, ev.Seq)
	if ev.Kind == events.Resolve {
		if stack := t.calls[o.call]; len(stack) > 1 {
			t.calls[o.call] = stack[:len(stack)-1]
		} else {
			delete(t.calls, o.call)
		}
	}
	if ev.Err != nil {
		o.span.RecordError(ev.Err)
		o.span.SetStatus(codes.Error, ev.Err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	o.span.End()
}

// Pending returns the number of spans still waiting for their post event.
func (t *TraceListener) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
