package transport

import (
	"context"
	"fmt"
	"net"

	"chordkv/internal/errs"
	"chordkv/internal/wire"
)

// Call opens a new TCP connection to addr, writes req, reads and returns
// the single reply frame, then closes the connection. There is no
// connection reuse: callers dial fresh for every request, since ring
// forwarding does not benefit from pooled long-lived connections the way
// a client-facing API would.
func Call(ctx context.Context, addr string, req wire.Frame) (wire.Frame, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wire.Frame{}, errs.Wrap(errs.KindTransport, "dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return wire.Frame{}, errs.Wrap(errs.KindTransport, "set deadline: %w", err)
		}
	}

	if err := wire.WriteFrame(conn, req); err != nil {
		return wire.Frame{}, errs.Wrap(errs.KindTransport, "write request to %s: %w", addr, err)
	}

	reply, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Frame{}, errs.Wrap(errs.KindTransport, "read reply from %s: %w", addr, err)
	}
	if reply.Kind == wire.KindError {
		var er wire.ErrorReply
		if derr := wire.DecodePayload(reply.Payload, &er); derr == nil {
			return wire.Frame{}, fmt.Errorf("%s: %s", er.Kind, er.Message)
		}
	}
	return reply, nil
}
