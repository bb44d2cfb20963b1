// Package ctxutil provides request-scoped context helpers: trace-ID
// attachment and deadline/cancellation checks. The hop counter used by
// the routing layer travels on the wire frame itself (wire.Frame.HopCount),
// not in the context, since it must survive a network hop.
package ctxutil

import (
	"context"
	"errors"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/trace"
)

// unexported key to avoid collisions
type traceKey struct{}

// ContextOption configures the behavior of NewContext. Multiple options
// can be combined.
type ContextOption func(*ctxConfig)

type ctxConfig struct {
	withTrace bool
	nodeID    domain.ID
	timeout   time.Duration
}

// WithTrace enables attaching a fresh traceID to the created context.
// The traceID is derived from the provided nodeID.
func WithTrace(nodeID domain.ID) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.withTrace = true
		cfg.nodeID = nodeID
	}
}

// WithTimeout sets a timeout duration for the created context. The
// caller must defer the cancel function returned by NewContext.
func WithTimeout(d time.Duration) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.timeout = d
	}
}

// NewContext creates a new context configured according to the provided
// options.
func NewContext(opts ...ContextOption) (context.Context, context.CancelFunc) {
	cfg := &ctxConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.timeout)
	} else {
		ctx = context.Background()
	}
	if cfg.withTrace {
		ctx, _ = trace.AttachTraceID(ctx, cfg.nodeID)
	}

	return ctx, cancel
}

// TraceIDFromContext extracts the traceID carried by ctx, or "" if unset.
func TraceIDFromContext(ctx context.Context) string {
	return trace.GetTraceID(ctx)
}

// EnsureTraceID attaches a traceID derived from nodeID if ctx does not
// already carry one.
func EnsureTraceID(ctx context.Context, nodeID domain.ID) context.Context {
	if id := trace.GetTraceID(ctx); id == "" {
		ctx, _ = trace.AttachTraceID(ctx, nodeID)
	}
	return ctx
}

// CheckContext reports whether ctx has been canceled or its deadline has
// expired, wrapped as a RingError of kind Transport.
func CheckContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return errs.New(errs.KindTransport, err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.New(errs.KindTransport, err)
	default:
		return nil
	}
}
