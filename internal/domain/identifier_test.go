package domain

import "testing"

func TestBetween(t *testing.T) {
	sp, err := NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}

	id := func(v uint64) ID { return sp.FromUint64(v) }

	tests := []struct {
		name string
		x, a, b uint64
		want bool
	}{
		{"linear hit", 5, 1, 10, true},
		{"linear miss below", 1, 1, 10, false},
		{"linear boundary inclusive", 10, 1, 10, true},
		{"wrap hit above a", 250, 200, 10, true},
		{"wrap hit below b", 5, 200, 10, true},
		{"wrap miss", 100, 200, 10, false},
		{"whole ring when a==b", 7, 42, 42, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := id(tt.x).Between(id(tt.a), id(tt.b))
			if got != tt.want {
				t.Errorf("Between(%d, %d, %d) = %v, want %v", tt.x, tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAddMod(t *testing.T) {
	sp, err := NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	a := sp.FromUint64(250)
	b := sp.FromUint64(10)
	sum, err := sp.AddMod(a, b)
	if err != nil {
		t.Fatalf("AddMod: %v", err)
	}
	if sum.ToBigInt().Int64() != 4 { // (250+10) mod 256 = 4
		t.Errorf("AddMod(250,10) = %s, want 4", sum.ToBigInt().String())
	}
}

func TestFromHexStringRoundtrip(t *testing.T) {
	sp, err := NewSpace(13)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	id, err := sp.FromHexString("0x1fff")
	if err != nil {
		t.Fatalf("FromHexString: %v", err)
	}
	if err := sp.IsValidID(id); err != nil {
		t.Errorf("expected valid id, got %v", err)
	}
	if id.ToHexString(false) != "1fff" {
		t.Errorf("ToHexString = %s, want 1fff", id.ToHexString(false))
	}

	if _, err := sp.FromHexString("0x2000"); err == nil {
		t.Errorf("expected error for value exceeding 13-bit space")
	}
}

func TestNewIdFromStringDeterministic(t *testing.T) {
	sp, err := NewSpace(160)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	a := sp.NewIdFromString("127.0.0.1:4000")
	b := sp.NewIdFromString("127.0.0.1:4000")
	if !a.Equal(b) {
		t.Errorf("expected deterministic hashing, got %s != %s", a.ToHexString(true), b.ToHexString(true))
	}
	c := sp.NewIdFromString("127.0.0.1:4001")
	if a.Equal(c) {
		t.Errorf("expected different addresses to hash differently")
	}
}
