package ring

import (
	"testing"

	"chordkv/internal/domain"
)

func mustSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func ep(sp domain.Space, id uint64, port int) domain.Endpoint {
	return domain.Endpoint{IP: "127.0.0.1", Port: port, NodeId: sp.FromUint64(id)}
}

func TestInitSingleNode(t *testing.T) {
	sp := mustSpace(t)
	self := ep(sp, 10, 9000)
	st := New(self, sp, 3)
	st.InitSingleNode()

	if got := st.FirstSuccessor(); got == nil || !got.Equal(self) {
		t.Errorf("FirstSuccessor = %v, want self", got)
	}
	if got := st.GetPredecessor(); got == nil || !got.Equal(self) {
		t.Errorf("GetPredecessor = %v, want self", got)
	}
	if !st.InArc(sp.FromUint64(200)) {
		t.Errorf("InArc should own the whole ring for a single node")
	}
}

func TestSetSuccessorListLengthMismatch(t *testing.T) {
	sp := mustSpace(t)
	st := New(ep(sp, 10, 9000), sp, 3)
	n := ep(sp, 20, 9001)
	st.SetSuccessorList([]*domain.Endpoint{&n}) // wrong length, ignored

	if got := st.FirstSuccessor(); got != nil {
		t.Errorf("FirstSuccessor = %v, want nil after rejected update", got)
	}
}

func TestPromoteCandidate(t *testing.T) {
	sp := mustSpace(t)
	st := New(ep(sp, 10, 9000), sp, 3)
	a := ep(sp, 20, 9001)
	b := ep(sp, 30, 9002)
	c := ep(sp, 40, 9003)
	st.SetSuccessorList([]*domain.Endpoint{&a, &b, &c})

	st.PromoteCandidate(1) // a presumed dead, b becomes head

	got := st.SuccessorList()
	if len(got) != 2 || !got[0].Equal(b) || !got[1].Equal(c) {
		t.Errorf("SuccessorList after promote = %v, want [b, c]", got)
	}
}

func TestPromoteCandidateInvalidIndex(t *testing.T) {
	sp := mustSpace(t)
	st := New(ep(sp, 10, 9000), sp, 3)
	a := ep(sp, 20, 9001)
	st.SetSuccessorList([]*domain.Endpoint{&a, nil, nil})

	st.PromoteCandidate(0) // invalid: index <= 0 is a no-op
	if got := st.FirstSuccessor(); got == nil || !got.Equal(a) {
		t.Errorf("PromoteCandidate(0) should be a no-op, got %v", got)
	}
}

func TestInArc(t *testing.T) {
	sp := mustSpace(t)
	self := ep(sp, 100, 9000)
	st := New(self, sp, 3)
	pred := ep(sp, 50, 9001)
	st.SetPredecessor(&pred)

	tests := []struct {
		name string
		id   uint64
		want bool
	}{
		{"inside arc", 75, true},
		{"boundary equals self", 100, true},
		{"boundary equals predecessor excluded", 50, false},
		{"outside arc", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := st.InArc(sp.FromUint64(tt.id)); got != tt.want {
				t.Errorf("InArc(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestReplicaChain(t *testing.T) {
	sp := mustSpace(t)
	self := ep(sp, 10, 9000)
	st := New(self, sp, 3)
	a := ep(sp, 20, 9001)
	b := ep(sp, 30, 9002)
	st.SetSuccessorList([]*domain.Endpoint{&a, &b, nil})

	chain := st.ReplicaChain(3)
	if len(chain) != 3 || !chain[0].Equal(self) || !chain[1].Equal(a) || !chain[2].Equal(b) {
		t.Errorf("ReplicaChain(3) = %v, want [self, a, b]", chain)
	}

	if chain1 := st.ReplicaChain(1); len(chain1) != 1 || !chain1[0].Equal(self) {
		t.Errorf("ReplicaChain(1) = %v, want [self]", chain1)
	}
}

func TestReplicaChainStopsAtWraparound(t *testing.T) {
	sp := mustSpace(t)
	self := ep(sp, 10, 9000)
	st := New(self, sp, 3)
	st.InitSingleNode() // successor is self

	chain := st.ReplicaChain(3)
	if len(chain) != 1 || !chain[0].Equal(self) {
		t.Errorf("ReplicaChain on single node = %v, want [self]", chain)
	}
}
