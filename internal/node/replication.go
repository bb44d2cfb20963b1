package node

import (
	"context"

	"chordkv/internal/domain"
	"chordkv/internal/errs"
	"chordkv/internal/logger"
	"chordkv/internal/telemetry"
	"chordkv/internal/wire"
)

// replicateInsert fans a just-stored write out to this node's downstream
// replicas (the replica chain beyond self). In eventual mode this fires
// a single asynchronous hop and returns immediately; each subsequent
// replica continues the chain on its own. In chain mode it blocks on the
// first downstream hop, which itself blocks on the next, so the call
// only returns once the whole chain has committed.
func (n *Node) replicateInsert(ctx context.Context, rawKey, value string) error {
	downstream := n.downstreamChain()
	if len(downstream) == 0 {
		return nil
	}
	next, rest := downstream[0], downstream[1:]
	req := wire.ReplicateRequest{RawKey: rawKey, Value: value, Depth: 1, Chain: rest}

	if n.mode == ModeEventual {
		go func() {
			bg := context.Background()
			if err := n.call(bg, next, wire.KindReplicate, 0, req, nil); err != nil {
				n.lgr.Warn("replicate: async hop failed",
					logger.F("key", rawKey), logger.FEndpoint("target", next), logger.F("error", err.Error()))
			}
		}()
		return nil
	}

	ctx, endSpan := telemetry.StartReplicationSpan(ctx, "insert", req.Depth)
	defer endSpan()
	if err := n.call(ctx, next, wire.KindReplicate, 0, req, nil); err != nil {
		return errs.Wrap(errs.KindTransport, "chain replication to %s failed: %w", next.Addr(), err)
	}
	return nil
}

// replicateDelete mirrors replicateInsert for deletes.
func (n *Node) replicateDelete(ctx context.Context, rawKey string) error {
	downstream := n.downstreamChain()
	if len(downstream) == 0 {
		return nil
	}
	next, rest := downstream[0], downstream[1:]
	req := wire.ReplicateDeleteRequest{RawKey: rawKey, Depth: 1, Chain: rest}

	if n.mode == ModeEventual {
		go func() {
			bg := context.Background()
			if err := n.call(bg, next, wire.KindReplicateDelete, 0, req, nil); err != nil {
				n.lgr.Warn("replicate delete: async hop failed",
					logger.F("key", rawKey), logger.FEndpoint("target", next), logger.F("error", err.Error()))
			}
		}()
		return nil
	}

	ctx, endSpan := telemetry.StartReplicationSpan(ctx, "delete", req.Depth)
	defer endSpan()
	if err := n.call(ctx, next, wire.KindReplicateDelete, 0, req, nil); err != nil {
		return errs.Wrap(errs.KindTransport, "chain replication delete to %s failed: %w", next.Addr(), err)
	}
	return nil
}

// downstreamChain returns the replica targets beyond self, in order.
func (n *Node) downstreamChain() []domain.Endpoint {
	chain := n.ring.ReplicaChain(n.replicaFactor)
	if len(chain) <= 1 {
		return nil
	}
	return chain[1:]
}

func (n *Node) handleReplicate(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.ReplicateRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	item := domain.Item{Key: n.keyID(req.RawKey), RawKey: req.RawKey, Value: req.Value, Depth: req.Depth}
	n.store.Put(item)
	n.lgr.Debug("replicate: stored copy", logger.F("key", req.RawKey), logger.F("depth", req.Depth))

	if len(req.Chain) > 0 {
		next, rest := req.Chain[0], req.Chain[1:]
		nextReq := wire.ReplicateRequest{RawKey: req.RawKey, Value: req.Value, Depth: req.Depth + 1, Chain: rest}
		if n.mode == ModeEventual {
			go func() {
				bg := context.Background()
				if err := n.call(bg, next, wire.KindReplicate, 0, nextReq, nil); err != nil {
					n.lgr.Warn("replicate: downstream hop failed",
						logger.F("key", req.RawKey), logger.FEndpoint("target", next), logger.F("error", err.Error()))
				}
			}()
		} else if err := n.call(ctx, next, wire.KindReplicate, 0, nextReq, nil); err != nil {
			return wire.Frame{}, errs.Wrap(errs.KindTransport, "chain replication to %s failed: %w", next.Addr(), err)
		}
	}

	payload, err := encodeOrErr(struct{}{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindReplicate, payload), nil
}

func (n *Node) handleReplicateDelete(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	var req wire.ReplicateDeleteRequest
	if err := wire.DecodePayload(f.Payload, &req); err != nil {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	id := n.keyID(req.RawKey)
	if err := n.store.Delete(id); err != nil && err != domain.ErrItemNotFound {
		return wire.Frame{}, errs.New(errs.KindProtocol, err)
	}

	if len(req.Chain) > 0 {
		next, rest := req.Chain[0], req.Chain[1:]
		nextReq := wire.ReplicateDeleteRequest{RawKey: req.RawKey, Depth: req.Depth + 1, Chain: rest}
		if n.mode == ModeEventual {
			go func() {
				bg := context.Background()
				if err := n.call(bg, next, wire.KindReplicateDelete, 0, nextReq, nil); err != nil {
					n.lgr.Warn("replicate delete: downstream hop failed",
						logger.F("key", req.RawKey), logger.FEndpoint("target", next), logger.F("error", err.Error()))
				}
			}()
		} else if err := n.call(ctx, next, wire.KindReplicateDelete, 0, nextReq, nil); err != nil {
			return wire.Frame{}, errs.Wrap(errs.KindTransport, "chain replication delete to %s failed: %w", next.Addr(), err)
		}
	}

	payload, err := encodeOrErr(struct{}{})
	if err != nil {
		return wire.Frame{}, err
	}
	return reply(f, wire.KindReplicateDelete, payload), nil
}
