package bootstrap

import (
	"chordkv/internal/domain"
	"context"
)

// Bootstrap discovers existing ring members to join through, and
// optionally publishes this node's own address for future joiners.
type Bootstrap interface {
	// Discover returns a list of known peer addresses ("host:port").
	Discover(ctx context.Context) ([]string, error)
	// Register publishes ep, if this backend supports it.
	Register(ctx context.Context, ep domain.Endpoint) error
	// Deregister removes ep's published address, if this backend supports it.
	Deregister(ctx context.Context, ep domain.Endpoint) error
}
