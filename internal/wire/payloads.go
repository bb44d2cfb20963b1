package wire

import "chordkv/internal/domain"

// FindSuccessorRequest asks the receiving node to resolve the owner of
// ID, forwarding to its successor if it is not itself the owner.
type FindSuccessorRequest struct {
	ID domain.ID
}

// FindSuccessorReply carries the endpoint that owns ID.
type FindSuccessorReply struct {
	Owner domain.Endpoint
}

// NotifyRequest tells the receiver "I believe I am your predecessor".
type NotifyRequest struct {
	Candidate domain.Endpoint
}

// NotifyAsSuccRequest tells the receiver "I believe I am your successor",
// used during join to let the new node's would-be predecessor refresh its
// successor pointer without waiting for a stabilization round.
type NotifyAsSuccRequest struct {
	Candidate domain.Endpoint
}

// SetSuccRequest instructs the receiver to set its successor.
type SetSuccRequest struct {
	Successor domain.Endpoint
}

// SetPredRequest instructs the receiver to set its predecessor.
type SetPredRequest struct {
	Predecessor domain.Endpoint
}

// InsertRequest carries a key/value pair to be stored at the owning
// node's arc. Depth is 0 for client-originated inserts; replica copies
// travel as ReplicateRequest, which carries its own depth.
type InsertRequest struct {
	RawKey string
	Value  string
	Depth  int
}

// QueryRequest asks for the current value of RawKey. ForceLocal is set
// only on the internal hop a chain-mode primary makes to its replica
// tail: it tells the receiver to answer from its own local copy without
// re-running the ownership routing check (a replica is not the owner of
// the key it holds a copy of).
type QueryRequest struct {
	RawKey     string
	ForceLocal bool
}

// QueryReply carries the result of a QueryRequest.
type QueryReply struct {
	Found bool
	Value string
}

// DeleteRequest asks for RawKey to be removed.
type DeleteRequest struct {
	RawKey string
	Depth  int
}

// ReplicateRequest is the fire-and-forget (eventual mode) or chained
// (chain mode) propagation of an insert to a downstream replica. Chain
// holds the endpoints still owed a copy after the receiver, so each hop
// only needs to know its own next target, not the whole original chain.
type ReplicateRequest struct {
	RawKey string
	Value  string
	Depth  int
	Chain  []domain.Endpoint
}

// ReplicateDeleteRequest propagates a delete to a downstream replica.
type ReplicateDeleteRequest struct {
	RawKey string
	Depth  int
	Chain  []domain.Endpoint
}

// OverlayRequest asks the receiver to describe the ring. A fresh request
// (Started false) triggers a walk all the way around the ring, each hop
// appending itself to Acc, that terminates back at the originating node
// and returns the full membership. LocalOnly skips the walk entirely and
// answers from this node's own view only (self, predecessor, successor
// chain) — used internally where a join only needs one hop's worth of
// state, not the whole ring.
type OverlayRequest struct {
	LocalOnly         bool
	Started           bool
	Origin            domain.Endpoint
	OriginPredecessor *domain.Endpoint
	Acc               []domain.Endpoint
}

// OverlayReply describes the ring as seen from the requesting node: its
// own identity, its predecessor, and (after a full walk) every other
// live member in clockwise order starting from its successor.
type OverlayReply struct {
	Self          domain.Endpoint
	Predecessor   *domain.Endpoint
	SuccessorList []domain.Endpoint
}

// ScanRequest asks the receiver to walk the ring starting here,
// accumulating every depth-0 item each node along the way holds as
// primary. A fresh request (Started false) begins the walk; it
// terminates back at Origin and returns every live item exactly once.
type ScanRequest struct {
	Started bool
	Origin  domain.Endpoint
	Acc     []ScanItem
}

// ScanReply carries the keys and values returned by a ScanRequest.
type ScanReply struct {
	Items []ScanItem
}

// ScanItem is one key/value pair carried in a ScanReply or a
// TransferStoreRequest. Depth is 0 for a primary copy and >0 for a
// replica copy; Scan only ever reports depth-0 items, but a store
// transfer during membership changes moves items of any depth.
type ScanItem struct {
	RawKey string
	Value  string
	Depth  int
}

// DepartRequest tells the receiver a peer is leaving the ring
// gracefully, handing off its predecessor/successor and its data.
type DepartRequest struct {
	Departing   domain.Endpoint
	Predecessor domain.Endpoint
	Successor   domain.Endpoint
	Items       []ScanItem
}

// TransferStoreRequest hands a batch of items to the receiver, typically
// after a join shrinks the sender's arc.
type TransferStoreRequest struct {
	Items []ScanItem
}

// PingRequest is a liveness probe used by the predecessor-failure check.
type PingRequest struct{}

// LeaveCmdRequest is a client-issued command asking the contacted node,
// specifically, to leave the ring gracefully now (as opposed to
// DepartRequest, which is the handoff a departing node sends its
// successor as part of carrying that out).
type LeaveCmdRequest struct{}

// LeaveCmdReply acknowledges a completed graceful departure.
type LeaveCmdReply struct{}

// ErrorReply carries a textual error in place of a successful reply.
type ErrorReply struct {
	Kind    string
	Message string
}
