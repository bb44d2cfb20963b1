// Package ring holds the per-node membership state of the circular
// identifier space: self, predecessor, and the successor list that
// doubles as the replication chain for the configured replica factor.
package ring

import (
	"fmt"
	"sync"

	"chordkv/internal/domain"
	"chordkv/internal/logger"
)

// entry is a single slot in the successor list or the predecessor
// pointer. It is a struct (rather than a bare field) so each slot can be
// locked independently of its neighbors.
type entry struct {
	ep *domain.Endpoint
	mu sync.RWMutex
}

// State is the ring membership state owned by a single node. It combines
// the Chord-style successor/predecessor links with the successor list,
// which this module repurposes as the ordered replication chain: entry 0
// is the immediate successor (primary replica target), entry 1 the
// second replica, and so on up to the configured replica factor.
type State struct {
	logger logger.Logger
	space  domain.Space
	self   domain.Endpoint

	successorList []*entry // ordered chain of up to R-1 downstream replicas
	listSize      int
	predecessor   *entry
}

// New creates a ring State for self, with a successor/replica list sized
// listSize (typically R-1, the number of downstream replicas beyond the
// primary). The list starts empty; callers fill it via InitSingleNode or
// through stabilization.
func New(self domain.Endpoint, space domain.Space, listSize int, opts ...Option) *State {
	st := &State{
		self:          self,
		space:         space,
		successorList: make([]*entry, listSize),
		listSize:      listSize,
		predecessor:   &entry{},
		logger:        &logger.NopLogger{},
	}
	for i := range st.successorList {
		st.successorList[i] = &entry{}
	}
	for _, opt := range opts {
		opt(st)
	}
	st.logger.Debug("ring state initialized", logger.F("list_size", listSize))
	return st
}

// InitSingleNode configures the ring to represent a network of one: the
// node is its own successor and predecessor.
func (st *State) InitSingleNode() {
	st.successorList[0] = &entry{ep: &st.self}
	st.predecessor = &entry{ep: &st.self}
	st.logger.Debug("ring state set to single-node")
}

func (st *State) Space() domain.Space { return st.space }

func (st *State) Self() domain.Endpoint { return st.self }

func (st *State) ListSize() int { return st.listSize }

// GetSuccessor returns the i-th entry of the replica chain (0 is the
// immediate successor). Returns nil if i is out of range or unset.
func (st *State) GetSuccessor(i int) *domain.Endpoint {
	if i < 0 || i >= len(st.successorList) {
		st.logger.Warn("GetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(st.successorList)-1)),
		)
		return nil
	}
	e := st.successorList[i]
	e.mu.RLock()
	ep := e.ep
	e.mu.RUnlock()
	return ep
}

// FirstSuccessor is a convenience equivalent to GetSuccessor(0).
func (st *State) FirstSuccessor() *domain.Endpoint {
	return st.GetSuccessor(0)
}

// SetSuccessor updates the i-th entry of the replica chain.
func (st *State) SetSuccessor(i int, ep *domain.Endpoint) {
	if i < 0 || i >= len(st.successorList) {
		st.logger.Warn("SetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(st.successorList)-1)),
		)
		return
	}
	e := st.successorList[i]
	e.mu.Lock()
	e.ep = ep
	e.mu.Unlock()
	if ep != nil {
		st.logger.Debug("SetSuccessor: updated", logger.F("index", i), logger.FEndpoint("successor", *ep))
	} else {
		st.logger.Debug("SetSuccessor: cleared", logger.F("index", i))
	}
}

// SuccessorList returns a shallow copy of every non-nil entry currently
// known, in chain order. Callers may freely modify the returned slice.
func (st *State) SuccessorList() []domain.Endpoint {
	out := make([]domain.Endpoint, 0, len(st.successorList))
	for _, e := range st.successorList {
		e.mu.RLock()
		ep := e.ep
		e.mu.RUnlock()
		if ep != nil {
			out = append(out, *ep)
		}
	}
	return out
}

// SetSuccessorList replaces the entire chain. nodes must have the same
// length as the configured list size; entries may be nil.
func (st *State) SetSuccessorList(nodes []*domain.Endpoint) {
	if len(nodes) != len(st.successorList) {
		st.logger.Warn("SetSuccessorList: length mismatch",
			logger.F("expected", len(st.successorList)),
			logger.F("got", len(nodes)),
		)
		return
	}
	for i, ep := range nodes {
		st.SetSuccessor(i, ep)
	}
}

// PromoteCandidate restructures the replica chain after entry i is
// discovered to be the new first live successor: it becomes the head,
// everything after it shifts forward, everything before it (presumed
// dead) is dropped, and the tail is padded with nils.
//
// Used by stabilization when the current successor has failed; the
// caller promotes the next non-empty entry without probing it.
func (st *State) PromoteCandidate(i int) {
	if i <= 0 || i >= st.listSize {
		st.logger.Warn("PromoteCandidate: invalid index",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[1..%d]", st.listSize-1)),
		)
		return
	}
	candidate := st.GetSuccessor(i)
	if candidate == nil {
		st.logger.Warn("PromoteCandidate: candidate is nil", logger.F("index", i))
		return
	}
	newList := make([]*domain.Endpoint, 0, st.listSize)
	newList = append(newList, candidate)
	for j := i + 1; j < st.listSize; j++ {
		if ep := st.GetSuccessor(j); ep != nil {
			newList = append(newList, ep)
		}
	}
	for len(newList) < st.listSize {
		newList = append(newList, nil)
	}
	st.SetSuccessorList(newList)
	st.logger.Debug("PromoteCandidate: promoted", logger.F("from_index", i), logger.FEndpoint("candidate", *candidate))
}

// GetPredecessor returns the current predecessor, or nil if unset.
func (st *State) GetPredecessor() *domain.Endpoint {
	st.predecessor.mu.RLock()
	ep := st.predecessor.ep
	st.predecessor.mu.RUnlock()
	return ep
}

// SetPredecessor updates the predecessor pointer.
func (st *State) SetPredecessor(ep *domain.Endpoint) {
	st.predecessor.mu.Lock()
	st.predecessor.ep = ep
	st.predecessor.mu.Unlock()
	if ep != nil {
		st.logger.Debug("SetPredecessor: updated", logger.FEndpoint("predecessor", *ep))
	} else {
		st.logger.Debug("SetPredecessor: cleared")
	}
}

// InArc reports whether id falls in this node's ownership arc, i.e. the
// half-open range (predecessor, self]. If the predecessor is unknown the
// node is assumed to own the whole ring (single-node case).
func (st *State) InArc(id domain.ID) bool {
	pred := st.GetPredecessor()
	if pred == nil {
		return true
	}
	return id.Between(pred.NodeId, st.self.NodeId)
}

// ReplicaChain returns the ordered list of endpoints that should hold
// replicas of a key owned by this node: the node itself, followed by up
// to r-1 live successors from the chain. r is the configured replica
// factor, clamped to the ring size actually known.
func (st *State) ReplicaChain(r int) []domain.Endpoint {
	chain := make([]domain.Endpoint, 0, r)
	chain = append(chain, st.self)
	for i := 0; i < st.listSize && len(chain) < r; i++ {
		ep := st.GetSuccessor(i)
		if ep == nil {
			continue
		}
		if ep.Equal(st.self) {
			break
		}
		chain = append(chain, *ep)
	}
	return chain
}

// DebugLog emits a single structured snapshot of the ring state.
func (st *State) DebugLog() {
	pred := st.GetPredecessor()
	succs := st.SuccessorList()
	fields := []logger.Field{logger.FEndpoint("self", st.self)}
	if pred != nil {
		fields = append(fields, logger.FEndpoint("predecessor", *pred))
	}
	succInfo := make([]string, 0, len(succs))
	for _, s := range succs {
		succInfo = append(succInfo, s.Addr())
	}
	fields = append(fields, logger.F("successors", succInfo))
	st.logger.Debug("ring state snapshot", fields...)
}
