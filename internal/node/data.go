package node

import (
	"context"

	"chordkv/internal/ctxutil"
	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/logger"
	"chordkv/internal/wire"
)

func (n *Node) keyID(rawKey string) domain.ID {
	return n.ring.Space().NewIdFromString(rawKey)
}

// handleInsert stores RawKey/Value if this node owns the key, forwarding
// the request verbatim to the successor otherwise. On the owning node it
// fans the write out to the replica chain per the configured Mode before
// replying.
func (n *Node) handleInsert(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return wire.Frame{}, err
	}
	var req wire.InsertRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	id := n.keyID(req.RawKey)
	if !n.ring.InArc(id) {
		succ := n.ring.FirstSuccessor()
		if succ == nil || succ.Equal(n.ring.Self()) {
			return wire.Frame{}, errs.Wrap(errs.KindMembership, "not responsible for key %q and no successor known", req.RawKey)
		}
		return n.forward(ctx, *succ, f)
	}

	n.store.Put(domain.Item{Key: id, RawKey: req.RawKey, Value: req.Value, Depth: 0})
	n.lgr.Debug("insert: stored locally", logger.F("key", req.RawKey))

	if err := n.replicateInsert(ctx, req.RawKey, req.Value); err != nil {
		return wire.Frame{}, err
	}

	payload, err := encodeOrErr(struct{}{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindInsert, payload), nil
}

// handleQuery answers a read. In eventual mode a non-owner forwards the
// request toward the primary, and only the primary answers, from its own
// store; in chain mode the request is routed past the primary down to the
// tail of the replica chain for a linearizable read.
func (n *Node) handleQuery(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return wire.Frame{}, err
	}
	var req wire.QueryRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	id := n.keyID(req.RawKey)
	if !req.ForceLocal && !n.ring.InArc(id) {
		succ := n.ring.FirstSuccessor()
		if succ == nil || succ.Equal(n.ring.Self()) {
			return wire.Frame{}, errs.Wrap(errs.KindMembership, "not responsible for key %q and no successor known", req.RawKey)
		}
		return n.forward(ctx, *succ, f)
	}

	if !req.ForceLocal && n.mode == ModeChain {
		if tail := n.chainTail(); tail != nil && !tail.Equal(n.ring.Self()) {
			var tailReply wire.QueryReply
			if err := n.call(ctx, *tail, wire.KindQuery, f.HopCount+1, wire.QueryRequest{RawKey: req.RawKey, ForceLocal: true}, &tailReply); err != nil {
				return wire.Frame{}, err
			}
			payload, err := encodeOrErr(tailReply)
			if err != nil {
				return wire.Frame{}, err
			}
			return reply(f, wire.KindQueryReply, payload), nil
		}
	}

	item, err := n.store.Get(id)
	var qr wire.QueryReply
	if err != nil {
		if err != domain.ErrItemNotFound {
			return wire.Frame{}, errs.New(errs.KindNotFound, err)
		}
		qr = wire.QueryReply{Found: false}
	} else {
		qr = wire.QueryReply{Found: true, Value: item.Value}
	}
	payload, err := encodeOrErr(qr)
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindQueryReply, payload), nil
}

// handleDelete removes RawKey, forwarding to the successor if this node
// does not own the key and fanning the delete out to the replica chain
// otherwise.
func (n *Node) handleDelete(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return wire.Frame{}, err
	}
	var req wire.DeleteRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	id := n.keyID(req.RawKey)
	if !n.ring.InArc(id) {
		succ := n.ring.FirstSuccessor()
		if succ == nil || succ.Equal(n.ring.Self()) {
			return wire.Frame{}, errs.Wrap(errs.KindMembership, "not responsible for key %q and no successor known", req.RawKey)
		}
		return n.forward(ctx, *succ, f)
	}

	if err := n.store.Delete(id); err != nil && err != domain.ErrItemNotFound {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	if err := n.replicateDelete(ctx, req.RawKey); err != nil {
		return wire.Frame{}, err
	}

	payload, err := encodeOrErr(struct{}{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindDelete, payload), nil
}

// handleScan walks the ring starting at this node, accumulating every
// depth-0 item each member holds as primary, and returns the full result
// once the walk comes back around to the node that started it.
func (n *Node) handleScan(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if f.HopCount > n.maxHops {
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	var req wire.ScanRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	self := n.ring.Self()
	origin := req.Origin
	if !req.Started {
		origin = self
	}

	acc := req.Acc
	for _, it := range n.store.Scan() {
		acc = append(acc, wire.ScanItem{RawKey: it.RawKey, Value: it.Value})
	}

	succ := n.ring.FirstSuccessor()
	if succ == nil || succ.Equal(origin) {
		payload, err := encodeOrErr(wire.ScanReply{Items: acc})
		if err != nil {
			return wire.Frame{}, err
		}
		return reply(f, wire.KindScanReply, payload), nil
	}

	if f.HopCount+1 > n.maxHops {
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	var out wire.ScanReply
	nextReq := wire.ScanRequest{Started: true, Origin: origin, Acc: acc}
	if err := n.call(ctx, *succ, wire.KindScan, f.HopCount+1, nextReq, &out); err != nil {
		return wire.Frame{}, err
	}
	payload, err := encodeOrErr(out)
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindScanReply, payload), nil
}

// handleOverlay answers a local-only request from this node's own ring
// state, or walks the whole ring and reports back the full membership
// rotated to the originating node, per OverlayRequest.
func (n *Node) handleOverlay(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if f.HopCount > n.maxHops {
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	var req wire.OverlayRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	self := n.ring.Self()

	if req.LocalOnly {
		payload, err := encodeOrErr(wire.OverlayReply{
			Self:          self,
			Predecessor:   n.ring.GetPredecessor(),
			SuccessorList: n.ring.SuccessorList(),
		})
		if err != nil {
			return wire.Frame{}, err
		}
		return reply(f, wire.KindOverlayReply, payload), nil
	}

	origin := req.Origin
	originPred := req.OriginPredecessor
	acc := req.Acc
	if !req.Started {
		origin = self
		originPred = n.ring.GetPredecessor()
		acc = []domain.Endpoint{self}
	} else {
		acc = append(acc, self)
	}

	succ := n.ring.FirstSuccessor()
	if succ == nil || succ.Equal(origin) {
		payload, err := encodeOrErr(wire.OverlayReply{
			Self:          origin,
			Predecessor:   originPred,
			SuccessorList: acc[1:],
		})
		if err != nil {
			return wire.Frame{}, err
		}
		return reply(f, wire.KindOverlayReply, payload), nil
	}

	if f.HopCount+1 > n.maxHops {
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrHopCountExceeded)
	}
	var out wire.OverlayReply
	nextReq := wire.OverlayRequest{Started: true, Origin: origin, OriginPredecessor: originPred, Acc: acc}
	if err := n.call(ctx, *succ, wire.KindOverlay, f.HopCount+1, nextReq, &out); err != nil {
		return wire.Frame{}, err
	}
	payload, err := encodeOrErr(out)
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindOverlayReply, payload), nil
}

func (n *Node) handlePing(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	payload, err := encodeOrErr(wire.PingRequest{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindPing, payload), nil
}

// chainTail returns the last endpoint in this node's replica chain,
// i.e. where chain-mode reads should be routed. Returns this node itself
// when it is the only replica, and nil only if the chain is empty.
func (n *Node) chainTail() *domain.Endpoint {
	chain := n.ring.ReplicaChain(n.replicaFactor)
	if len(chain) == 0 {
		return nil
	}
	tail := chain[len(chain)-1]
	return &tail
}
