package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is the W3C trace context of a span in a storable form. The outbox keeps it
// next to each event so the publisher can continue the trace that produced the row.
type TraceContext struct {
	Parent string
	State  string
}

// Capture reads the active span context from ctx.
func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier.Get("traceparent"), State: carrier.Get("tracestate")}
}

// Restore returns ctx carrying tc as the remote parent. An empty tc leaves ctx as is.
func (tc TraceContext) Restore(ctx context.Context) context.Context {
	if tc.Parent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": tc.Parent}
	if tc.State != "" {
		carrier["tracestate"] = tc.State
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
