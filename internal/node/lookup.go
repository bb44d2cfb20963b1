package node

import (
	"context"

	"chordkv/internal/ctxutil"
	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/telemetry"
	"chordkv/internal/wire"
)

// FindSuccessor resolves the endpoint responsible for id, forwarding to
// this node's successor (and so on, transitively) when id does not fall
// in this node's own ownership arc.
func (n *Node) FindSuccessor(ctx context.Context, id domain.ID) (domain.Endpoint, error) {
	return n.findSuccessor(ctx, id, 0)
}

func (n *Node) findSuccessor(ctx context.Context, id domain.ID, hops int) (domain.Endpoint, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return domain.Endpoint{}, err
	}
	if hops > n.maxHops {
		return domain.Endpoint{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	if n.ring.InArc(id) {
		return n.ring.Self(), nil
	}
	succ := n.ring.FirstSuccessor()
	if succ == nil || succ.Equal(n.ring.Self()) {
		// Single-node ring, or not yet stabilized: we are all there is.
		return n.ring.Self(), nil
	}

	ctx, endSpan := telemetry.StartLookupSpan(ctx, id, hops)
	defer endSpan()

	var reply wire.FindSuccessorReply
	if err := n.call(ctx, *succ, wire.KindFindSuccessor, hops+1, wire.FindSuccessorRequest{ID: id}, &reply); err != nil {
		return domain.Endpoint{}, err
	}
	return reply.Owner, nil
}

func (n *Node) handleFindSuccessor(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.FindSuccessorRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	owner, err := n.findSuccessor(ctx, req.ID, f.HopCount)
	if err != nil {
		return wire.Frame{}, err
	}
	payload, err := wire.EncodePayload(wire.FindSuccessorReply{Owner: owner})
	if err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	return wire.Frame{
		RequestID: f.RequestID,
		Kind:      wire.KindFindSuccessorReply,
		Origin:    f.Origin,
		HopCount:  f.HopCount,
		Payload:   payload,
	}, nil
}
