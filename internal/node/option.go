package node

import (
	"time"

	"chordkv/internal/logger"
)

type Option func(*Node)

// WithLogger sets the logger used by this node.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.lgr = l
		}
	}
}

// WithMaxHops overrides the routing loop guard (default 256).
func WithMaxHops(max int) Option {
	return func(n *Node) {
		if max > 0 {
			n.maxHops = max
		}
	}
}

// WithFailureTimeout overrides the per-RPC timeout used by stabilization
// and peer-liveness checks.
func WithFailureTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.failureTimeout = d
		}
	}
}
