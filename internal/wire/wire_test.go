package wire

import (
	"bytes"
	"testing"

	"chordkv/internal/domain"
)

func TestFrameRoundTrip(t *testing.T) {
	sp, err := domain.NewSpace(8)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	origin := domain.Endpoint{IP: "10.0.0.1", Port: 9000, NodeId: sp.FromUint64(7)}

	payload, err := EncodePayload(InsertRequest{RawKey: "foo", Value: "bar", Depth: 0})
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	want := Frame{
		RequestID: "req-1",
		Kind:      KindInsert,
		Origin:    origin,
		HopCount:  3,
		Payload:   payload,
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if got.RequestID != want.RequestID || got.Kind != want.Kind || got.HopCount != want.HopCount {
		t.Errorf("frame mismatch: got %+v, want %+v", got, want)
	}
	if !got.Origin.Equal(origin) {
		t.Errorf("Origin = %+v, want %+v", got.Origin, origin)
	}

	var insert InsertRequest
	if err := DecodePayload(got.Payload, &insert); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if insert.RawKey != "foo" || insert.Value != "bar" {
		t.Errorf("payload = %+v, want RawKey=foo Value=bar", insert)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 0, 10}) // claims 10 bytes, provides none
	if _, err := ReadFrame(buf); err == nil {
		t.Errorf("expected error reading truncated frame")
	}
}

func TestReadBlockRejectsOversizedLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readBlock(buf); err == nil {
		t.Errorf("expected error for oversized block length")
	}
}

func TestKindString(t *testing.T) {
	if KindInsert.String() != "insert" {
		t.Errorf("KindInsert.String() = %q, want insert", KindInsert.String())
	}
	if KindPing.String() != "ping" {
		t.Errorf("KindPing.String() = %q, want ping", KindPing.String())
	}
}
