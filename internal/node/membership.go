package node

import (
	"context"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/logger"
	"chordkv/internal/wire"
)

// Join brings this node into the ring. An empty bootstrapAddr means this
// is the first node: it becomes a single-node ring. Otherwise bootstrapAddr
// is any already-participating node's address, used to resolve this
// node's successor.
func (n *Node) Join(ctx context.Context, bootstrapAddr string) error {
	if bootstrapAddr == "" {
		n.ring.InitSingleNode()
		n.lgr.Info("join: started a new single-node ring")
		return nil
	}

	self := n.ring.Self()

	var fsReply wire.FindSuccessorReply
	if err := n.callAddr(ctx, bootstrapAddr, wire.KindFindSuccessor, 0, wire.FindSuccessorRequest{ID: self.NodeId}, &fsReply); err != nil {
		return errs.Wrap(errs.KindTransport, "join: resolve successor via %s: %w", bootstrapAddr, err)
	}
	succ := fsReply.Owner
	n.ring.SetSuccessor(0, &succ)
	n.lgr.Info("join: resolved successor", logger.FEndpoint("successor", succ))

	// Ask our new successor for its current predecessor p, so we can set
	// ours without waiting for a stabilization round.
	var overlay wire.OverlayReply
	if err := n.call(ctx, succ, wire.KindOverlay, 0, wire.OverlayRequest{LocalOnly: true}, &overlay); err == nil && overlay.Predecessor != nil {
		n.ring.SetPredecessor(overlay.Predecessor)

		// Tell p directly that we are now its successor, so it repoints
		// succ_p = self immediately rather than waiting for its own
		// stabilization round to notice.
		p := *overlay.Predecessor
		if !p.Equal(self) {
			if err := n.call(ctx, p, wire.KindNotifyAsSucc, 0, wire.NotifyAsSuccRequest{Candidate: self}, nil); err != nil {
				n.lgr.Warn("join: notify-as-succ to predecessor failed, relying on stabilization", logger.F("error", err.Error()))
			}
		}
	}

	// Tell the successor we believe we are its predecessor, so it hands
	// over the keys we now own and updates its own pointer immediately.
	if err := n.call(ctx, succ, wire.KindNotify, 0, wire.NotifyRequest{Candidate: self}, nil); err != nil {
		n.lgr.Warn("join: notify successor failed, relying on stabilization", logger.F("error", err.Error()))
	}
	return nil
}

// Depart removes this node from the ring gracefully, handing its data
// and its predecessor/successor pointers to its neighbors.
func (n *Node) Depart(ctx context.Context) error {
	self := n.ring.Self()
	succ := n.ring.FirstSuccessor()
	pred := n.ring.GetPredecessor()

	if succ == nil || succ.Equal(self) {
		n.lgr.Info("depart: leaving a single-node ring, nothing to hand off")
		return nil
	}

	items := n.store.All()
	wireItems := make([]wire.ScanItem, 0, len(items))
	for _, it := range items {
		wireItems = append(wireItems, wire.ScanItem{RawKey: it.RawKey, Value: it.Value, Depth: it.Depth})
	}

	predEndpoint := self
	if pred != nil {
		predEndpoint = *pred
	}
	req := wire.DepartRequest{
		Departing:   self,
		Predecessor: predEndpoint,
		Successor:   *succ,
		Items:       wireItems,
	}
	if err := n.call(ctx, *succ, wire.KindDepart, 0, req, nil); err != nil {
		return errs.Wrap(errs.KindTransport, "depart: hand off to successor %s: %w", succ.Addr(), err)
	}

	if pred != nil && !pred.Equal(self) {
		if err := n.call(ctx, *pred, wire.KindSetSucc, 0, wire.SetSuccRequest{Successor: *succ}, nil); err != nil {
			n.lgr.Warn("depart: failed to repoint predecessor's successor", logger.F("error", err.Error()))
		}
	}
	n.lgr.Info("depart: handed off to successor", logger.FEndpoint("successor", *succ))
	return nil
}

func (n *Node) handleNotify(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.NotifyRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	self := n.ring.Self()
	candidate := req.Candidate
	if candidate.Equal(self) {
		return okReply(f, wire.KindNotify)
	}

	pred := n.ring.GetPredecessor()
	if pred == nil || candidate.NodeId.Between(pred.NodeId, self.NodeId) {
		n.ring.SetPredecessor(&candidate)
		n.lgr.Info("notify: predecessor updated", logger.FEndpoint("predecessor", candidate))
		go n.transferToPredecessor(candidate)
	}
	return okReply(f, wire.KindNotify)
}

// transferToPredecessor hands off items this node no longer owns after
// accepting p as its predecessor: everything outside (p, self].
func (n *Node) transferToPredecessor(p domain.Endpoint) {
	self := n.ring.Self()
	_, give := n.store.Split(p.NodeId, self.NodeId)
	if len(give) == 0 {
		return
	}
	items := make([]wire.ScanItem, 0, len(give))
	for _, it := range give {
		items = append(items, wire.ScanItem{RawKey: it.RawKey, Value: it.Value, Depth: it.Depth})
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.failureTimeout)
	defer cancel()
	if err := n.call(ctx, p, wire.KindTransferStore, 0, wire.TransferStoreRequest{Items: items}, nil); err != nil {
		n.lgr.Warn("transfer to predecessor failed", logger.FEndpoint("predecessor", p), logger.F("error", err.Error()))
		return
	}
	for _, it := range give {
		_ = n.store.Delete(it.Key)
	}
	n.lgr.Info("transfer to predecessor complete", logger.FEndpoint("predecessor", p), logger.F("count", len(give)))
}

func (n *Node) handleNotifyAsSucc(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.NotifyAsSuccRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	self := n.ring.Self()
	if req.Candidate.Equal(self) {
		return okReply(f, wire.KindNotifyAsSucc)
	}
	succ := n.ring.FirstSuccessor()
	if succ == nil || req.Candidate.NodeId.Between(self.NodeId, succ.NodeId) {
		n.ring.SetSuccessor(0, &req.Candidate)
		n.lgr.Info("notify-as-succ: successor updated", logger.FEndpoint("successor", req.Candidate))
	}
	return okReply(f, wire.KindNotifyAsSucc)
}

func (n *Node) handleSetSucc(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.SetSuccRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	n.ring.SetSuccessor(0, &req.Successor)
	n.lgr.Info("set-succ: successor set by peer", logger.FEndpoint("successor", req.Successor))
	return okReply(f, wire.KindSetSucc)
}

func (n *Node) handleSetPred(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.SetPredRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	n.ring.SetPredecessor(&req.Predecessor)
	n.lgr.Info("set-pred: predecessor set by peer", logger.FEndpoint("predecessor", req.Predecessor))
	return okReply(f, wire.KindSetPred)
}

// handleDepart processes a graceful leave notification from this node's
// current predecessor: it adopts the departing node's predecessor as its
// own and absorbs the handed-off items.
func (n *Node) handleDepart(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.DepartRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	pred := n.ring.GetPredecessor()
	if pred == nil || pred.Equal(req.Departing) {
		if !req.Predecessor.Equal(req.Departing) {
			n.ring.SetPredecessor(&req.Predecessor)
		} else {
			n.ring.SetPredecessor(nil)
		}
	}

	for _, it := range req.Items {
		n.store.Put(domain.Item{Key: n.keyID(it.RawKey), RawKey: it.RawKey, Value: it.Value, Depth: it.Depth})
	}
	n.lgr.Info("depart: absorbed departing predecessor",
		logger.FEndpoint("departing", req.Departing), logger.F("items", len(req.Items)))
	return okReply(f, wire.KindDepart)
}

// handleLeaveCmd is the client-facing trigger for Depart: a CLI asking
// this specific node, by address, to leave the ring now. The handoff
// itself is the same Depart performs on its own shutdown path.
func (n *Node) handleLeaveCmd(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	if err := n.Depart(ctx); err != nil {
		return wire.Frame{}, err
	}
	return okReply(f, wire.KindLeaveCmd)
}

// handleTransferStore absorbs a batch of items handed off by a peer,
// typically after this node's arc grew to include them.
func (n *Node) handleTransferStore(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.TransferStoreRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}
	for _, it := range req.Items {
		n.store.Put(domain.Item{Key: n.keyID(it.RawKey), RawKey: it.RawKey, Value: it.Value, Depth: it.Depth})
	}
	n.lgr.Debug("transfer-store: absorbed items", logger.F("count", len(req.Items)))
	return okReply(f, wire.KindTransferStore)
}

func okReply(f wire.Frame, kind wire.Kind) (wire.Frame, error) {
	payload, err := encodeOrErr(struct{}{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, kind, payload), nil
}
