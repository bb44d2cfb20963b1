package node

import (
	"context"

	"chordkv/internal/errs"
	"chordkv/internal/wire"
)

// Dispatch is the single entry point for every frame this node receives,
// whether it originates from a client or from another ring member
// forwarding a request. It is passed to transport.New as the connection
// handler.
func (n *Node) Dispatch(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	switch f.Kind {
	case wire.KindFindSuccessor:
		return n.handleFindSuccessor(ctx, f)
	case wire.KindNotify:
		return n.handleNotify(ctx, f)
	case wire.KindNotifyAsSucc:
		return n.handleNotifyAsSucc(ctx, f)
	case wire.KindSetSucc:
		return n.handleSetSucc(ctx, f)
	case wire.KindSetPred:
		return n.handleSetPred(ctx, f)
	case wire.KindInsert:
		return n.handleInsert(ctx, f)
	case wire.KindQuery:
		return n.handleQuery(ctx, f)
	case wire.KindDelete:
		return n.handleDelete(ctx, f)
	case wire.KindReplicate:
		return n.handleReplicate(ctx, f)
	case wire.KindReplicateDelete:
		return n.handleReplicateDelete(ctx, f)
	case wire.KindOverlay:
		return n.handleOverlay(ctx, f)
	case wire.KindScan:
		return n.handleScan(ctx, f)
	case wire.KindDepart:
		return n.handleDepart(ctx, f)
	case wire.KindTransferStore:
		return n.handleTransferStore(ctx, f)
	case wire.KindPing:
		return n.handlePing(ctx, f)
	case wire.KindLeaveCmd:
		return n.handleLeaveCmd(ctx, f)
	default:
		return wire.Frame{}, errs.New(errs.KindProtocol, errs.ErrUnknownKind)
	}
}

func reply(f wire.Frame, kind wire.Kind, payload []byte) wire.Frame {
	return wire.Frame{
		RequestID: f.RequestID,
		Kind:      kind,
		Origin:    f.Origin,
		HopCount:  f.HopCount,
		Payload:   payload,
	}
}

func encodeOrErr(v any) ([]byte, error) {
	b, err := wire.EncodePayload(v)
	if err != nil {
		return nil, errs.New(errs.KindProtocol, err)
	}
	return b, nil
}
