// Package node implements the per-node routing, membership, and
// replication engine: ownership testing against the local ring arc,
// successor-forwarding lookups guarded by a hop counter, and either
// eventual or chain replication across the successor list.
package node

import (
	"time"

	"chordkv/internal/logger"
	"chordkv/internal/ring"
	"chordkv/internal/store"
)

// defaultMaxHops bounds how many times a request may be forwarded
// before it is rejected as a probable routing loop. It is sized well
// above any realistic ring diameter for the deployments this module
// targets.
const defaultMaxHops = 256

// defaultFailureTimeout is the per-RPC timeout used by the stabilization
// loops when probing peers.
const defaultFailureTimeout = 2 * time.Second

// Node owns the ring membership state, the local item store, and the
// replication/consistency policy for one participant.
type Node struct {
	ring  *ring.State
	store store.Store
	lgr   logger.Logger

	replicaFactor  int // R: total copies held per key, including the primary
	mode           Mode
	maxHops        int
	failureTimeout time.Duration
}

// New creates a Node over the given ring state and store, replicating
// each key to replicaFactor-1 successors using the given Mode.
func New(rng *ring.State, st store.Store, replicaFactor int, mode Mode, opts ...Option) *Node {
	if replicaFactor < 1 {
		replicaFactor = 1
	}
	n := &Node{
		ring:           rng,
		store:          st,
		lgr:            &logger.NopLogger{},
		replicaFactor:  replicaFactor,
		mode:           mode,
		maxHops:        defaultMaxHops,
		failureTimeout: defaultFailureTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) Ring() *ring.State { return n.ring }

func (n *Node) Store() store.Store { return n.store }

func (n *Node) ReplicaFactor() int { return n.replicaFactor }

func (n *Node) Mode() Mode { return n.mode }
