package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chordkv/internal/domain"
)

const tracerName = "chordkv/node"

var tracer = otel.Tracer(tracerName)

// StartLookupSpan opens a span around one forwarding hop of a
// FindSuccessor lookup, tagging it with the queried id and the hop count
// carried on the frame. There is no RPC framework doing this
// automatically here, unlike a grpc interceptor chain, so each hop
// that forwards over the wire opens its own span explicitly.
func StartLookupSpan(ctx context.Context, id domain.ID, hops int) (context.Context, func()) {
	attrs := append(IdAttributes("dht.lookup.id", id), attribute.Int("dht.lookup.hops", hops))
	ctx, span := tracer.Start(ctx, "find_successor",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, func() { span.End() }
}

// StartReplicationSpan opens a span around one hop of chain propagation
// (insert or delete) to a downstream replica.
func StartReplicationSpan(ctx context.Context, op string, depth int) (context.Context, func()) {
	ctx, span := tracer.Start(ctx, "replicate."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int("dht.replicate.depth", depth)),
	)
	return ctx, func() { span.End() }
}
