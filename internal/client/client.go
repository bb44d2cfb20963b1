// Package client implements the thin RPC surface used by the CLI binary
// to talk to a ring node: one ephemeral connection per request, mirroring
// the way nodes themselves call each other over the wire protocol.
package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"chordkv/internal/errs"
	"chordkv/internal/trace"
	"chordkv/internal/transport"
	"chordkv/internal/wire"
)

// call issues a single request to addr and decodes the reply into out
// (when non-nil), returning the round-trip latency alongside any error.
func call(ctx context.Context, addr string, kind wire.Kind, payload any, out any) (time.Duration, error) {
	p, err := wire.EncodePayload(payload)
	if err != nil {
		return 0, err
	}
	req := wire.Frame{
		RequestID: trace.GenerateTraceID("client"),
		Kind:      kind,
		HopCount:  0,
		Payload:   p,
	}
	start := time.Now()
	reply, err := transport.Call(ctx, addr, req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	if out != nil {
		if err := wire.DecodePayload(reply.Payload, out); err != nil {
			return elapsed, err
		}
	}
	return elapsed, nil
}

// Insert stores key/value at addr's ring.
func Insert(ctx context.Context, addr, key, value string) (time.Duration, error) {
	return call(ctx, addr, wire.KindInsert, wire.InsertRequest{RawKey: key, Value: value}, nil)
}

// Query fetches key's value. found is false when the key is absent —
// that is not reported as an error.
func Query(ctx context.Context, addr, key string) (value string, found bool, elapsed time.Duration, err error) {
	var reply wire.QueryReply
	elapsed, err = call(ctx, addr, wire.KindQuery, wire.QueryRequest{RawKey: key}, &reply)
	if err != nil {
		return "", false, elapsed, err
	}
	return reply.Value, reply.Found, elapsed, nil
}

// Delete removes key.
func Delete(ctx context.Context, addr, key string) (time.Duration, error) {
	return call(ctx, addr, wire.KindDelete, wire.DeleteRequest{RawKey: key}, nil)
}

// Overlay returns the full ring membership, walked clockwise starting
// at the contacted node.
func Overlay(ctx context.Context, addr string) (wire.OverlayReply, time.Duration, error) {
	var reply wire.OverlayReply
	elapsed, err := call(ctx, addr, wire.KindOverlay, wire.OverlayRequest{}, &reply)
	return reply, elapsed, err
}

// Scan collects every primary (depth-0) item of every node, walking the
// ring clockwise starting at the contacted node.
func Scan(ctx context.Context, addr string) ([]wire.ScanItem, time.Duration, error) {
	var reply wire.ScanReply
	elapsed, err := call(ctx, addr, wire.KindScan, wire.ScanRequest{}, &reply)
	return reply.Items, elapsed, err
}

// Depart asks the contacted node to leave the ring gracefully. The node
// itself drives the handoff; this just triggers it remotely since the
// CLI has no other way to reach a running node's process.
func Depart(ctx context.Context, addr string) (time.Duration, error) {
	return call(ctx, addr, wire.KindLeaveCmd, wire.LeaveCmdRequest{}, nil)
}

// IsUsageError reports whether err is the client-visible form of a usage
// error raised by the contacted node. A local *errs.RingError keeps its
// Kind (the request never left this process); an error that crossed the
// wire arrives instead as the server's "kind: message" string, since
// transport.Call has no way to reconstruct a RingError from the reply's
// wire.ErrorReply.
func IsUsageError(err error) bool {
	if err == nil {
		return false
	}
	var re *errs.RingError
	if errors.As(err, &re) {
		return re.Kind == errs.KindUsage
	}
	return strings.HasPrefix(err.Error(), errs.KindUsage.String()+":")
}
