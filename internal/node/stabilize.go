package node

import (
	"context"
	"time"

	"chordkv/internal/domain"
	"chordkv/internal/logger"
	"chordkv/internal/wire"
)

// StartStabilizers runs the periodic maintenance loops that keep ring
// pointers and replicated data consistent in the presence of churn and
// failures. Both loops stop when ctx is canceled.
func (n *Node) StartStabilizers(ctx context.Context, stabilizeInterval, repairInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(stabilizeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				n.lgr.Info("stabilizers stopped")
				return
			case <-ticker.C:
				n.stabilizeSuccessor()
				n.fixSuccessorList()
				n.checkPredecessor()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(repairInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				n.lgr.Info("ownership repair stopped")
				return
			case <-ticker.C:
				n.ownershipRepair(ctx)
			}
		}
	}()
}

// stabilizeSuccessor verifies the current successor is alive and adopts
// a better candidate if the successor's own predecessor has moved closer.
// If the successor is unresponsive, it promotes the next non-empty entry
// in the replica chain (without probing that entry first); with no
// entries left, it reverts to single-node mode.
func (n *Node) stabilizeSuccessor() {
	self := n.ring.Self()
	succ := n.ring.FirstSuccessor()
	if succ == nil {
		n.lgr.Error("stabilize: successor is nil (invalid state)")
		return
	}

	var pred *domain.Endpoint
	if succ.Equal(self) {
		pred = n.ring.GetPredecessor()
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), n.failureTimeout)
		var overlay wire.OverlayReply
		err := n.call(ctx, *succ, wire.KindOverlay, 0, wire.OverlayRequest{LocalOnly: true}, &overlay)
		cancel()
		if err != nil {
			n.lgr.Warn("stabilize: successor unresponsive, attempting promotion",
				logger.FEndpoint("old_successor", *succ), logger.F("error", err.Error()))
			if !n.promoteNextSuccessor(*succ) {
				n.lgr.Warn("stabilize: no live candidates, reverting to single-node mode")
				n.ring.InitSingleNode()
			}
			return
		}
		pred = overlay.Predecessor
	}

	if pred != nil && !pred.Equal(self) && pred.NodeId.Between(self.NodeId, succ.NodeId) {
		n.ring.SetSuccessor(0, pred)
		succ = pred
	}

	if succ.Equal(self) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.failureTimeout)
	defer cancel()
	if err := n.call(ctx, *succ, wire.KindNotify, 0, wire.NotifyRequest{Candidate: self}, nil); err != nil {
		n.lgr.Warn("stabilize: notify failed", logger.FEndpoint("successor", *succ), logger.F("error", err.Error()))
	}
}

// promoteNextSuccessor advances the replica chain past a dead successor
// to the next non-empty entry, reporting whether one was found. The
// promoted entry is not checked for liveness here.
func (n *Node) promoteNextSuccessor(dead domain.Endpoint) bool {
	for i := 1; i < n.ring.ListSize(); i++ {
		if candidate := n.ring.GetSuccessor(i); candidate != nil {
			n.ring.PromoteCandidate(i)
			return true
		}
	}
	return false
}

// fixSuccessorList refreshes the replica chain by asking the immediate
// successor for its own successor list, keeping this node's chain one
// step ahead of churn.
func (n *Node) fixSuccessorList() {
	succ := n.ring.FirstSuccessor()
	if succ == nil || succ.Equal(n.ring.Self()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.failureTimeout)
	defer cancel()
	var overlay wire.OverlayReply
	if err := n.call(ctx, *succ, wire.KindOverlay, 0, wire.OverlayRequest{LocalOnly: true}, &overlay); err != nil {
		n.lgr.Warn("fix successor list: could not reach successor", logger.FEndpoint("successor", *succ), logger.F("error", err.Error()))
		return
	}

	size := n.ring.ListSize()
	newList := make([]*domain.Endpoint, size)
	s := *succ
	newList[0] = &s
	for i := 1; i < size; i++ {
		if i-1 >= len(overlay.SuccessorList) {
			break
		}
		candidate := overlay.SuccessorList[i-1]
		if candidate.Equal(n.ring.Self()) {
			break
		}
		newList[i] = &candidate
	}
	n.ring.SetSuccessorList(newList)
}

// checkPredecessor pings the current predecessor and clears it if it no
// longer answers.
func (n *Node) checkPredecessor() {
	pred := n.ring.GetPredecessor()
	if pred == nil || pred.Equal(n.ring.Self()) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.failureTimeout)
	defer cancel()
	if err := n.call(ctx, *pred, wire.KindPing, 0, wire.PingRequest{}, nil); err != nil {
		n.lgr.Warn("check predecessor: unresponsive, clearing", logger.FEndpoint("predecessor", *pred), logger.F("error", err.Error()))
		n.ring.SetPredecessor(nil)
	}
}

// ownershipRepair moves any locally held primary item that no longer
// falls in this node's arc to whoever is now responsible for it. This
// catches drift that Notify-time transfers miss, e.g. after a promotion.
func (n *Node) ownershipRepair(ctx context.Context) {
	self := n.ring.Self()
	pred := n.ring.GetPredecessor()
	if pred == nil {
		return
	}

	items := n.store.Between(pred.NodeId, self.NodeId)
	owned := make(map[string]struct{}, len(items))
	for _, it := range items {
		owned[it.Key.ToHexString(false)] = struct{}{}
	}

	all := n.store.Scan()
	for _, it := range all {
		if _, ok := owned[it.Key.ToHexString(false)]; ok {
			continue
		}
		resp, err := n.findSuccessor(ctx, it.Key, 0)
		if err != nil || resp.Equal(self) {
			continue
		}
		if err := n.call(ctx, resp, wire.KindTransferStore, 0, wire.TransferStoreRequest{
			Items: []wire.ScanItem{{RawKey: it.RawKey, Value: it.Value, Depth: it.Depth}},
		}, nil); err != nil {
			n.lgr.Warn("ownership repair: transfer failed", logger.F("key", it.RawKey), logger.FEndpoint("responsible", resp), logger.F("error", err.Error()))
			continue
		}
		_ = n.store.Delete(it.Key)
		n.lgr.Info("ownership repair: transferred stray item", logger.F("key", it.RawKey), logger.FEndpoint("responsible", resp))
	}
}
