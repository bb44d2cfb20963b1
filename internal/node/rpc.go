package node

import (
	"context"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/transport"
	"chordkv/internal/trace"
	"chordkv/internal/wire"
)

// call dials target fresh, sends a frame of the given kind carrying
// payload, and decodes the reply into out (when out is non-nil). hops is
// the hop count to stamp on the outgoing frame.
func (n *Node) call(ctx context.Context, target domain.Endpoint, kind wire.Kind, hops int, payload, out any) error {
	return n.callAddr(ctx, target.Addr(), kind, hops, payload, out)
}

// callAddr is like call but dials a raw "host:port" address directly,
// for the one case where the peer's identifier isn't known yet: the
// bootstrap handshake at join time.
func (n *Node) callAddr(ctx context.Context, addr string, kind wire.Kind, hops int, payload, out any) error {
	p, err := wire.EncodePayload(payload)
	if err != nil {
		return errs.New(errs.KindProtocol, err)
	}
	req := wire.Frame{
		RequestID: trace.GenerateTraceID(n.ring.Self().NodeId.ToHexString(true)),
		Kind:      kind,
		Origin:    n.ring.Self(),
		HopCount:  hops,
		Payload:   p,
	}
	reply, err := transport.Call(ctx, addr, req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := wire.DecodePayload(reply.Payload, out); err != nil {
			return errs.New(errs.KindProtocol, err)
		}
	}
	return nil
}

// forward relays the incoming frame f unchanged (besides an incremented
// hop count) to target and returns whatever reply it produces. Used when
// this node is not responsible for f's key and must hand it to the next
// ring member.
func (n *Node) forward(ctx context.Context, target domain.Endpoint, f wire.Frame) (wire.Frame, error) {
	if f.HopCount+1 > n.maxHops {
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	req := f
	req.HopCount = f.HopCount + 1
	return transport.Call(ctx, target.Addr(), req)
}
