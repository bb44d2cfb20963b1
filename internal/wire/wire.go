// Package wire defines the frame format exchanged between ring nodes: a
// length-prefixed envelope carrying a request/reply kind, the endpoint of
// the node that sent the frame (empty when the CLI client sends it), a
// hop counter, and a msgpack-encoded payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"chordkv/internal/domain"
)

// Kind identifies the operation (or reply) a Frame carries.
type Kind uint8

const (
	KindFindSuccessor Kind = iota
	KindFindSuccessorReply
	KindNotify
	KindNotifyAsSucc
	KindSetSucc
	KindSetPred
	KindInsert
	KindQuery
	KindQueryReply
	KindDelete
	KindReplicate
	KindReplicateDelete
	KindOverlay
	KindOverlayReply
	KindScan
	KindScanReply
	KindDepart
	KindTransferStore
	KindPing
	KindLeaveCmd
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindFindSuccessor:
		return "find_successor"
	case KindFindSuccessorReply:
		return "find_successor_reply"
	case KindNotify:
		return "notify"
	case KindNotifyAsSucc:
		return "notify_as_succ"
	case KindSetSucc:
		return "set_succ"
	case KindSetPred:
		return "set_pred"
	case KindInsert:
		return "insert"
	case KindQuery:
		return "query"
	case KindQueryReply:
		return "query_reply"
	case KindDelete:
		return "delete"
	case KindReplicate:
		return "replicate"
	case KindReplicateDelete:
		return "replicate_delete"
	case KindOverlay:
		return "overlay"
	case KindOverlayReply:
		return "overlay_reply"
	case KindScan:
		return "scan"
	case KindScanReply:
		return "scan_reply"
	case KindDepart:
		return "depart"
	case KindTransferStore:
		return "transfer_store"
	case KindPing:
		return "ping"
	case KindLeaveCmd:
		return "leave_cmd"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// maxFrameLen bounds the accepted payload size, guarding the decoder
// against a corrupt or hostile length prefix driving an unbounded alloc.
const maxFrameLen = 16 << 20 // 16 MiB

// Frame is the envelope written to the wire. Payload holds the
// kind-specific msgpack-encoded body (see payloads.go); callers decode it
// with DecodePayload once Kind is known.
type Frame struct {
	RequestID string
	Kind      Kind
	Origin    domain.Endpoint
	HopCount  int
	Payload   []byte
}

// header is the msgpack-encoded portion of a Frame excluding the raw
// payload bytes, which are appended separately so arbitrary payload
// encodings can be nested without double-encoding.
type header struct {
	RequestID string
	Kind      Kind
	Origin    domain.Endpoint
	HopCount  int
}

// WriteFrame serializes f and writes it to w as a 4-byte big-endian
// length prefix followed by the msgpack-encoded header, a second length
// prefix, and the raw payload bytes.
func WriteFrame(w io.Writer, f Frame) error {
	hdrBytes, err := msgpack.Marshal(header{
		RequestID: f.RequestID,
		Kind:      f.Kind,
		Origin:    f.Origin,
		HopCount:  f.HopCount,
	})
	if err != nil {
		return fmt.Errorf("wire: encode header: %w", err)
	}

	buf := make([]byte, 4+len(hdrBytes))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(hdrBytes)))
	copy(buf[4:], hdrBytes)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}

	plen := make([]byte, 4)
	binary.BigEndian.PutUint32(plen, uint32(len(f.Payload)))
	if _, err := w.Write(plen); err != nil {
		return fmt.Errorf("wire: write payload length: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return fmt.Errorf("wire: write payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r, as written by WriteFrame.
func ReadFrame(r io.Reader) (Frame, error) {
	hdrBytes, err := readBlock(r)
	if err != nil {
		return Frame{}, err
	}
	var hdr header
	if err := msgpack.Unmarshal(hdrBytes, &hdr); err != nil {
		return Frame{}, fmt.Errorf("wire: decode header: %w", err)
	}

	payload, err := readBlock(r)
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		RequestID: hdr.RequestID,
		Kind:      hdr.Kind,
		Origin:    hdr.Origin,
		HopCount:  hdr.HopCount,
		Payload:   payload,
	}, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, fmt.Errorf("wire: block of %d bytes exceeds max frame length", n)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: read block: %w", err)
	}
	return buf, nil
}

// EncodePayload msgpack-encodes v for use as a Frame's Payload.
func EncodePayload(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode payload: %w", err)
	}
	return b, nil
}

// DecodePayload msgpack-decodes a Frame's Payload into v.
func DecodePayload(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("wire: decode payload: %w", err)
	}
	return nil
}
