package transport

import (
	"context"
	"testing"
	"time"

	"chordkv/internal/wire"
)

func TestServerCallRoundTrip(t *testing.T) {
	ln, addr, err := Listen("public", "127.0.0.1", "127.0.0.1", 0)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	handler := func(ctx context.Context, f wire.Frame) (wire.Frame, error) {
		var req wire.PingRequest
		if err := wire.DecodePayload(f.Payload, &req); err != nil {
			t.Errorf("DecodePayload: %v", err)
		}
		payload, _ := wire.EncodePayload(wire.PingRequest{})
		return wire.Frame{RequestID: f.RequestID, Kind: wire.KindPing, Payload: payload}, nil
	}

	srv := New(ln, handler)
	go srv.Start()
	defer srv.Stop()

	payload, _ := wire.EncodePayload(wire.PingRequest{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := Call(ctx, addr, wire.Frame{RequestID: "r1", Kind: wire.KindPing, Payload: payload})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.RequestID != "r1" {
		t.Errorf("RequestID = %q, want r1", reply.RequestID)
	}
}

func TestCallDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := Call(ctx, "127.0.0.1:1", wire.Frame{})
	if err == nil {
		t.Errorf("expected dial failure")
	}
}
