package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/node"
	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/transport"
)

func startTestNode(t *testing.T) string {
	t.Helper()
	sp, err := domain.NewSpace(16)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ln, _, err := transport.Listen("public", "127.0.0.1", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	self := domain.Endpoint{IP: "127.0.0.1", Port: port, NodeId: sp.FromUint64(1)}

	rng := ring.New(self, sp, 1)
	rng.InitSingleNode()
	n := node.New(rng, store.NewMemory(nil), 1, node.ModeEventual)

	srv := transport.New(ln, n.Dispatch)
	go srv.Start()
	t.Cleanup(func() { srv.Stop() })
	return self.Addr()
}

func TestInsertQueryDeleteRoundTrip(t *testing.T) {
	addr := startTestNode(t)
	ctx := context.Background()

	if _, err := Insert(ctx, addr, "foo", "bar"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	value, found, _, err := Query(ctx, addr, "foo")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !found || value != "bar" {
		t.Errorf("Query(foo) = (%q, %v), want (bar, true)", value, found)
	}

	if _, err := Delete(ctx, addr, "foo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, found, _, err = Query(ctx, addr, "foo")
	if err != nil {
		t.Fatalf("Query after delete: %v", err)
	}
	if found {
		t.Errorf("Query(foo) after delete found = true, want false")
	}
}

func TestOverlayAndScan(t *testing.T) {
	addr := startTestNode(t)
	ctx := context.Background()

	if _, err := Insert(ctx, addr, "k1", "v1"); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	overlay, _, err := Overlay(ctx, addr)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	if overlay.Self.Addr() != addr {
		t.Errorf("Overlay.Self = %s, want %s", overlay.Self.Addr(), addr)
	}
	if len(overlay.SuccessorList) != 0 {
		t.Errorf("Overlay.SuccessorList on a single-node ring = %v, want empty", overlay.SuccessorList)
	}

	items, _, err := Scan(ctx, addr)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 1 || items[0].RawKey != "k1" || items[0].Value != "v1" {
		t.Errorf("Scan = %+v, want one item k1=v1", items)
	}
}

// startJoinedNode starts a node and, unless bootstrap is empty, joins it
// to the ring through that address; an empty bootstrap starts a
// single-node ring.
func startJoinedNode(t *testing.T, sp domain.Space, id uint64, bootstrap string) (addr string, n *node.Node) {
	t.Helper()
	ln, _, err := transport.Listen("public", "127.0.0.1", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	self := domain.Endpoint{IP: "127.0.0.1", Port: port, NodeId: sp.FromUint64(id)}

	rng := ring.New(self, sp, 1)
	n = node.New(rng, store.NewMemory(nil), 1, node.ModeEventual)

	srv := transport.New(ln, n.Dispatch)
	go srv.Start()
	t.Cleanup(func() { srv.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Join(ctx, bootstrap); err != nil {
		t.Fatalf("Join(%q): %v", bootstrap, err)
	}
	return self.Addr(), n
}

// TestOverlayAndScanWalkMultiNodeRing exercises the ring-walk case
// specifically, where a single contacted node's own local state is not
// enough to answer: a three-member ring must see all three endpoints
// and all three items, from any starting point.
func TestOverlayAndScanWalkMultiNodeRing(t *testing.T) {
	sp, err := domain.NewSpace(16)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	addrA, _ := startJoinedNode(t, sp, 0, "")
	addrB, _ := startJoinedNode(t, sp, 21845, addrA)
	addrC, _ := startJoinedNode(t, sp, 43690, addrB)

	ctx := context.Background()
	for addr, key := range map[string]string{addrA: "ka", addrB: "kb", addrC: "kc"} {
		if _, err := Insert(ctx, addr, key, key+"-value"); err != nil {
			t.Fatalf("Insert via %s: %v", addr, err)
		}
	}

	overlay, _, err := Overlay(ctx, addrB)
	if err != nil {
		t.Fatalf("Overlay: %v", err)
	}
	seen := map[string]bool{overlay.Self.Addr(): true}
	for _, ep := range overlay.SuccessorList {
		seen[ep.Addr()] = true
	}
	for _, want := range []string{addrA, addrB, addrC} {
		if !seen[want] {
			t.Errorf("Overlay from %s missing endpoint %s: self=%s successors=%v", addrB, want, overlay.Self.Addr(), overlay.SuccessorList)
		}
	}
	if len(overlay.SuccessorList) != 2 {
		t.Errorf("Overlay.SuccessorList = %v, want 2 other members", overlay.SuccessorList)
	}

	items, _, err := Scan(ctx, addrC)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Scan = %+v, want 3 items from the whole ring", items)
	}
	gotKeys := map[string]bool{}
	for _, it := range items {
		gotKeys[it.RawKey] = true
	}
	for _, key := range []string{"ka", "kb", "kc"} {
		if !gotKeys[key] {
			t.Errorf("Scan result missing key %q: %+v", key, items)
		}
	}
}

func TestDepartSingleNodeRing(t *testing.T) {
	addr := startTestNode(t)
	ctx := context.Background()
	if _, err := Depart(ctx, addr); err != nil {
		t.Fatalf("Depart: %v", err)
	}
}

func TestQueryUnreachableNodeIsTransportError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, _, _, err := Query(ctx, "127.0.0.1:1", "foo")
	if err == nil {
		t.Fatal("expected an error dialing an unreachable address")
	}
	if IsUsageError(err) {
		t.Errorf("IsUsageError(%v) = true, want false for a transport failure", err)
	}
	var re *errs.RingError
	if !errors.As(err, &re) || re.Kind != errs.KindTransport {
		t.Errorf("err = %v, want a KindTransport RingError", err)
	}
}
