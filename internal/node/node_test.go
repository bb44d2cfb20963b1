package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/transport"
	"chordkv/internal/wire"
)

func mustSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(16)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

// harnessNode is a Node wired to a live TCP listener, for tests that need
// to exercise real forwarding and RPC rather than calling handlers
// in-process.
type harnessNode struct {
	n   *Node
	srv *transport.Server
	ep  domain.Endpoint
}

func startNode(t *testing.T, sp domain.Space, id uint64, listSize, replicaFactor int, mode Mode) *harnessNode {
	t.Helper()
	ln, _, err := transport.Listen("public", "127.0.0.1", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	self := domain.Endpoint{IP: "127.0.0.1", Port: port, NodeId: sp.FromUint64(id)}

	rng := ring.New(self, sp, listSize)
	st := store.NewMemory(nil)
	n := New(rng, st, replicaFactor, mode, WithFailureTimeout(2*time.Second))

	srv := transport.New(ln, n.Dispatch)
	go srv.Start()

	h := &harnessNode{n: n, srv: srv, ep: self}
	t.Cleanup(func() { srv.Stop() })
	return h
}

func TestSingleNodeInsertQueryDelete(t *testing.T) {
	sp := mustSpace(t)
	h := startNode(t, sp, 1, 2, 1, ModeEventual)
	h.n.Ring().InitSingleNode()
	ctx := context.Background()

	insertPayload, _ := wire.EncodePayload(wire.InsertRequest{RawKey: "foo", Value: "bar"})
	if _, err := h.n.Dispatch(ctx, wire.Frame{Kind: wire.KindInsert, Payload: insertPayload}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	queryPayload, _ := wire.EncodePayload(wire.QueryRequest{RawKey: "foo"})
	reply, err := h.n.Dispatch(ctx, wire.Frame{Kind: wire.KindQuery, Payload: queryPayload})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var qr wire.QueryReply
	if err := wire.DecodePayload(reply.Payload, &qr); err != nil {
		t.Fatalf("decode query reply: %v", err)
	}
	if !qr.Found || qr.Value != "bar" {
		t.Errorf("query reply = %+v, want Found=true Value=bar", qr)
	}

	deletePayload, _ := wire.EncodePayload(wire.DeleteRequest{RawKey: "foo"})
	if _, err := h.n.Dispatch(ctx, wire.Frame{Kind: wire.KindDelete, Payload: deletePayload}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reply, err = h.n.Dispatch(ctx, wire.Frame{Kind: wire.KindQuery, Payload: queryPayload})
	if err != nil {
		t.Fatalf("query after delete: %v", err)
	}
	qr = wire.QueryReply{}
	if err := wire.DecodePayload(reply.Payload, &qr); err != nil {
		t.Fatalf("decode query reply: %v", err)
	}
	if qr.Found {
		t.Errorf("query after delete: Found = true, want false")
	}
}

// twoNodeRing wires two live nodes into a symmetric two-member ring: low
// owns (high, low] and high owns (low, high].
func twoNodeRing(t *testing.T, replicaFactor int, mode Mode) (low, high *harnessNode) {
	t.Helper()
	sp := mustSpace(t)
	low = startNode(t, sp, 0, replicaFactor, replicaFactor, mode)
	high = startNode(t, sp, 32768, replicaFactor, replicaFactor, mode)

	lowEP, highEP := low.ep, high.ep
	low.n.Ring().SetSuccessor(0, &highEP)
	low.n.Ring().SetPredecessor(&highEP)
	high.n.Ring().SetSuccessor(0, &lowEP)
	high.n.Ring().SetPredecessor(&lowEP)
	return low, high
}

// pickKeyIn finds a key string whose hashed ID falls in (lo, hi], trying a
// bounded number of candidates.
func pickKeyIn(t *testing.T, sp domain.Space, lo, hi domain.ID) string {
	t.Helper()
	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key-%d", i)
		id := sp.NewIdFromString(key)
		if id.Between(lo, hi) {
			return key
		}
	}
	t.Fatalf("could not find a key landing in the requested arc")
	return ""
}

func TestFindSuccessorForwarding(t *testing.T) {
	low, high := twoNodeRing(t, 1, ModeEventual)
	sp := mustSpace(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// A key owned by high, looked up starting from low: low must forward.
	keyForHigh := pickKeyIn(t, sp, low.ep.NodeId, high.ep.NodeId)
	owner, err := low.n.FindSuccessor(ctx, sp.NewIdFromString(keyForHigh))
	if err != nil {
		t.Fatalf("FindSuccessor: %v", err)
	}
	if !owner.Equal(high.ep) {
		t.Errorf("owner = %v, want high (%v)", owner, high.ep)
	}

	// A key owned by low, looked up starting from high: high must forward.
	keyForLow := pickKeyIn(t, sp, high.ep.NodeId, low.ep.NodeId)
	owner, err = high.n.FindSuccessor(ctx, sp.NewIdFromString(keyForLow))
	if err != nil {
		t.Fatalf("FindSuccessor: %v", err)
	}
	if !owner.Equal(low.ep) {
		t.Errorf("owner = %v, want low (%v)", owner, low.ep)
	}
}

func TestInsertForwardsToOwnerAndQueryAgrees(t *testing.T) {
	low, high := twoNodeRing(t, 1, ModeEventual)
	sp := mustSpace(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Key owned by high, inserted via low: must be forwarded to high.
	key := pickKeyIn(t, sp, low.ep.NodeId, high.ep.NodeId)
	insertPayload, _ := wire.EncodePayload(wire.InsertRequest{RawKey: key, Value: "v1"})
	if _, err := low.n.Dispatch(ctx, wire.Frame{Kind: wire.KindInsert, Payload: insertPayload}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Querying directly at the owner must see it.
	queryPayload, _ := wire.EncodePayload(wire.QueryRequest{RawKey: key})
	reply, err := high.n.Dispatch(ctx, wire.Frame{Kind: wire.KindQuery, Payload: queryPayload})
	if err != nil {
		t.Fatalf("query at owner: %v", err)
	}
	var qr wire.QueryReply
	if err := wire.DecodePayload(reply.Payload, &qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !qr.Found || qr.Value != "v1" {
		t.Errorf("query at owner = %+v, want Found=true Value=v1", qr)
	}

	// Querying via the non-owner must forward through and agree.
	reply, err = low.n.Dispatch(ctx, wire.Frame{Kind: wire.KindQuery, Payload: queryPayload})
	if err != nil {
		t.Fatalf("query via non-owner: %v", err)
	}
	qr = wire.QueryReply{}
	if err := wire.DecodePayload(reply.Payload, &qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !qr.Found || qr.Value != "v1" {
		t.Errorf("query via non-owner = %+v, want Found=true Value=v1", qr)
	}
}

func TestHopCountExceeded(t *testing.T) {
	sp := mustSpace(t)
	h := startNode(t, sp, 1, 2, 1, ModeEventual)
	h.n.Ring().InitSingleNode()

	_, err := h.n.findSuccessor(context.Background(), sp.FromUint64(99), h.n.maxHops+1)
	if !errors.Is(err, errs.ErrHopCountExceeded) {
		t.Errorf("findSuccessor with hops over limit: err = %v, want ErrHopCountExceeded", err)
	}
}

func TestReplicateInsertEventualFansOutAsync(t *testing.T) {
	low, high := twoNodeRing(t, 2, ModeEventual)
	ctx := context.Background()

	low.n.Store().Put(domain.Item{Key: low.n.keyID("k"), RawKey: "k", Value: "v", Depth: 0})
	if err := low.n.replicateInsert(ctx, "k", "v"); err != nil {
		t.Fatalf("replicateInsert: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if item, err := high.n.Store().Get(high.n.keyID("k")); err == nil && item.Value == "v" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("replica never received the eventual-mode copy")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReplicateInsertChainIsSynchronous(t *testing.T) {
	low, high := twoNodeRing(t, 2, ModeChain)
	ctx := context.Background()

	low.n.Store().Put(domain.Item{Key: low.n.keyID("k"), RawKey: "k", Value: "v", Depth: 0})
	if err := low.n.replicateInsert(ctx, "k", "v"); err != nil {
		t.Fatalf("replicateInsert: %v", err)
	}

	// Chain mode blocks until the downstream hop committed, so the copy
	// must already be visible with no polling.
	item, err := high.n.Store().Get(high.n.keyID("k"))
	if err != nil {
		t.Fatalf("replica Get: %v", err)
	}
	if item.Value != "v" || item.Depth != 1 {
		t.Errorf("replica item = %+v, want Value=v Depth=1", item)
	}
}

func TestReplicateDeletePropagates(t *testing.T) {
	low, high := twoNodeRing(t, 2, ModeChain)
	ctx := context.Background()

	high.n.Store().Put(domain.Item{Key: high.n.keyID("k"), RawKey: "k", Value: "v", Depth: 1})
	if err := low.n.replicateDelete(ctx, "k"); err != nil {
		t.Fatalf("replicateDelete: %v", err)
	}
	if _, err := high.n.Store().Get(high.n.keyID("k")); err != domain.ErrItemNotFound {
		t.Errorf("replica Get after replicateDelete: err = %v, want ErrItemNotFound", err)
	}
}

func TestChainModeQueryRoutesToTail(t *testing.T) {
	low, high := twoNodeRing(t, 2, ModeChain)
	sp := mustSpace(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Pick a key low actually owns, so handleQuery takes the tail-routing
	// branch instead of forwarding to find the owner first.
	key := pickKeyIn(t, sp, high.ep.NodeId, low.ep.NodeId)

	// Primary stores the authoritative copy, tail gets a stale-looking one
	// to prove the read really came from the tail and not the primary.
	low.n.Store().Put(domain.Item{Key: low.n.keyID(key), RawKey: key, Value: "primary-copy", Depth: 0})
	high.n.Store().Put(domain.Item{Key: high.n.keyID(key), RawKey: key, Value: "tail-copy", Depth: 1})

	queryPayload, _ := wire.EncodePayload(wire.QueryRequest{RawKey: key})
	reply, err := low.n.Dispatch(ctx, wire.Frame{Kind: wire.KindQuery, Payload: queryPayload})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var qr wire.QueryReply
	if err := wire.DecodePayload(reply.Payload, &qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if qr.Value != "tail-copy" {
		t.Errorf("chain-mode read returned %q, want tail-copy (routed to replica tail)", qr.Value)
	}
}

func TestJoinConvergesToSymmetricRing(t *testing.T) {
	sp := mustSpace(t)
	a := startNode(t, sp, 0, 1, 1, ModeEventual)
	a.n.Ring().InitSingleNode()
	b := startNode(t, sp, 32768, 1, 1, ModeEventual)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.n.Join(ctx, a.ep.Addr()); err != nil {
		t.Fatalf("Join: %v", err)
	}

	a.n.stabilizeSuccessor()
	b.n.stabilizeSuccessor()

	if succ := a.n.Ring().FirstSuccessor(); succ == nil || !succ.Equal(b.ep) {
		t.Errorf("a.successor = %v, want b", succ)
	}
	if succ := b.n.Ring().FirstSuccessor(); succ == nil || !succ.Equal(a.ep) {
		t.Errorf("b.successor = %v, want a", succ)
	}
	if pred := a.n.Ring().GetPredecessor(); pred == nil || !pred.Equal(b.ep) {
		t.Errorf("a.predecessor = %v, want b", pred)
	}
	if pred := b.n.Ring().GetPredecessor(); pred == nil || !pred.Equal(a.ep) {
		t.Errorf("b.predecessor = %v, want a", pred)
	}
}

// TestJoinNotifiesPredecessorImmediately checks that joining corrects the
// new predecessor's successor pointer right away via notify_as_succ,
// without relying on a later stabilization round.
func TestJoinNotifiesPredecessorImmediately(t *testing.T) {
	sp := mustSpace(t)
	a := startNode(t, sp, 0, 1, 1, ModeEventual)
	a.n.Ring().InitSingleNode()
	b := startNode(t, sp, 32768, 1, 1, ModeEventual)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.n.Join(ctx, a.ep.Addr()); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if succ := a.n.Ring().FirstSuccessor(); succ == nil || !succ.Equal(b.ep) {
		t.Errorf("a.successor immediately after join = %v, want b (no stabilization run yet)", succ)
	}
	if pred := a.n.Ring().GetPredecessor(); pred == nil || !pred.Equal(b.ep) {
		t.Errorf("a.predecessor immediately after join = %v, want b", pred)
	}
	if pred := b.n.Ring().GetPredecessor(); pred == nil || !pred.Equal(a.ep) {
		t.Errorf("b.predecessor immediately after join = %v, want a", pred)
	}
}

// threeNodeRing wires three live nodes into a ring in ascending ID order:
// a -> b -> c -> a.
func threeNodeRing(t *testing.T, replicaFactor int, mode Mode) (a, b, c *harnessNode) {
	t.Helper()
	sp := mustSpace(t)
	a = startNode(t, sp, 0, replicaFactor, replicaFactor, mode)
	b = startNode(t, sp, 21845, replicaFactor, replicaFactor, mode)
	c = startNode(t, sp, 43690, replicaFactor, replicaFactor, mode)

	aEP, bEP, cEP := a.ep, b.ep, c.ep
	a.n.Ring().SetSuccessor(0, &bEP)
	a.n.Ring().SetPredecessor(&cEP)
	b.n.Ring().SetSuccessor(0, &cEP)
	b.n.Ring().SetPredecessor(&aEP)
	c.n.Ring().SetSuccessor(0, &aEP)
	c.n.Ring().SetPredecessor(&bEP)
	return a, b, c
}

func TestOverlayWalksFullRing(t *testing.T) {
	a, b, c := threeNodeRing(t, 1, ModeEventual)

	payload, err := wire.EncodePayload(wire.OverlayRequest{})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	replyFrame, err := b.n.Dispatch(ctx, wire.Frame{Kind: wire.KindOverlay, Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch(KindOverlay): %v", err)
	}
	var out wire.OverlayReply
	if err := wire.DecodePayload(replyFrame.Payload, &out); err != nil {
		t.Fatalf("decode overlay reply: %v", err)
	}

	if !out.Self.Equal(b.ep) {
		t.Errorf("Self = %v, want b", out.Self)
	}
	if out.Predecessor == nil || !out.Predecessor.Equal(a.ep) {
		t.Errorf("Predecessor = %v, want a", out.Predecessor)
	}
	if len(out.SuccessorList) != 2 || !out.SuccessorList[0].Equal(c.ep) || !out.SuccessorList[1].Equal(a.ep) {
		t.Errorf("SuccessorList = %v, want [c, a]", out.SuccessorList)
	}
}

func TestScanWalksFullRing(t *testing.T) {
	a, b, c := threeNodeRing(t, 1, ModeEventual)
	a.n.Store().Put(domain.Item{Key: a.n.keyID("ka"), RawKey: "ka", Value: "va", Depth: 0})
	b.n.Store().Put(domain.Item{Key: b.n.keyID("kb"), RawKey: "kb", Value: "vb", Depth: 0})
	c.n.Store().Put(domain.Item{Key: c.n.keyID("kc"), RawKey: "kc", Value: "vc", Depth: 0})
	// a replica copy (depth > 0) must not leak into the scan result.
	b.n.Store().Put(domain.Item{Key: a.n.keyID("ka"), RawKey: "ka", Value: "va", Depth: 1})

	payload, err := wire.EncodePayload(wire.ScanRequest{})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	replyFrame, err := c.n.Dispatch(ctx, wire.Frame{Kind: wire.KindScan, Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch(KindScan): %v", err)
	}
	var out wire.ScanReply
	if err := wire.DecodePayload(replyFrame.Payload, &out); err != nil {
		t.Fatalf("decode scan reply: %v", err)
	}

	if len(out.Items) != 3 {
		t.Fatalf("Items = %+v, want 3 depth-0 items from the whole ring", out.Items)
	}
	got := map[string]string{}
	for _, it := range out.Items {
		got[it.RawKey] = it.Value
	}
	want := map[string]string{"ka": "va", "kb": "vb", "kc": "vc"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Items[%q] = %q, want %q", k, got[k], v)
		}
	}
}

func TestDepartHandsOffToSoleNeighbor(t *testing.T) {
	low, high := twoNodeRing(t, 1, ModeEventual)
	high.n.Store().Put(domain.Item{Key: high.n.keyID("k"), RawKey: "k", Value: "v", Depth: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := high.n.Depart(ctx); err != nil {
		t.Fatalf("Depart: %v", err)
	}

	if succ := low.n.Ring().FirstSuccessor(); succ == nil || !succ.Equal(low.ep) {
		t.Errorf("low.successor after depart = %v, want self", succ)
	}
	if pred := low.n.Ring().GetPredecessor(); pred == nil || !pred.Equal(low.ep) {
		t.Errorf("low.predecessor after depart = %v, want self", pred)
	}
	if item, err := low.n.Store().Get(low.n.keyID("k")); err != nil || item.Value != "v" {
		t.Errorf("low.store did not absorb departing node's item: item=%+v err=%v", item, err)
	}
}

func TestCheckPredecessorClearsDeadPeer(t *testing.T) {
	sp := mustSpace(t)
	a := startNode(t, sp, 0, 1, 1, ModeEventual)
	a.n.Ring().InitSingleNode()

	dead := domain.Endpoint{IP: "127.0.0.1", Port: 1, NodeId: sp.FromUint64(9999)}
	a.n.Ring().SetPredecessor(&dead)

	a.n.checkPredecessor()

	if pred := a.n.Ring().GetPredecessor(); pred != nil {
		t.Errorf("predecessor = %v, want nil after unresponsive peer", pred)
	}
}

func TestLeaveCmdTriggersDepart(t *testing.T) {
	low, high := twoNodeRing(t, 1, ModeEventual)
	high.n.Store().Put(domain.Item{Key: high.n.keyID("k"), RawKey: "k", Value: "v", Depth: 0})

	payload, err := wire.EncodePayload(wire.LeaveCmdRequest{})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := high.n.Dispatch(ctx, wire.Frame{Kind: wire.KindLeaveCmd, Payload: payload})
	if err != nil {
		t.Fatalf("Dispatch(KindLeaveCmd): %v", err)
	}
	if reply.Kind != wire.KindLeaveCmd {
		t.Errorf("reply.Kind = %v, want KindLeaveCmd", reply.Kind)
	}

	if succ := low.n.Ring().FirstSuccessor(); succ == nil || !succ.Equal(low.ep) {
		t.Errorf("low.successor after leave cmd = %v, want self", succ)
	}
	if item, err := low.n.Store().Get(low.n.keyID("k")); err != nil || item.Value != "v" {
		t.Errorf("low.store did not absorb departing node's item: item=%+v err=%v", item, err)
	}
}
