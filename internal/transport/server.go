// Package transport hosts the TCP listener that accepts ring-protocol
// connections and the ephemeral dialer used to issue outbound requests.
// There is no connection pool: each outbound call opens, uses, and closes
// its own connection, matching the request volume of a gossip/forwarding
// protocol where persistent pools buy little.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"chordkv/internal/errs"
	"chordkv/internal/logger"
	"chordkv/internal/wire"
)

// Handler processes one decoded frame and returns the frame to write
// back. It is supplied by the node package, which owns the dispatch
// table keyed by wire.Kind.
type Handler func(ctx context.Context, f wire.Frame) (wire.Frame, error)

// Server accepts TCP connections and, for each frame read off a
// connection, invokes Handler and writes back its reply.
type Server struct {
	listener net.Listener
	handler  Handler
	lgr      logger.Logger
}

// New wraps lis with a Server that dispatches every frame it reads to
// handler.
func New(lis net.Listener, handler Handler, opts ...Option) *Server {
	s := &Server{
		listener: lis,
		handler:  handler,
		lgr:      &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the accept loop and blocks until the listener is closed.
func (s *Server) Start() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return fmt.Errorf("transport: accept: %w", err)
		}
		go s.serveConn(conn)
	}
}

// Stop closes the listener, unblocking Start.
func (s *Server) Stop() error {
	return s.listener.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	for {
		f, err := wire.ReadFrame(conn)
		if err != nil {
			s.lgr.Debug("transport: connection closed", logger.F("remote", remote), logger.F("reason", err.Error()))
			return
		}
		reply, herr := s.handler(context.Background(), f)
		if herr != nil {
			reply = errorFrame(f, herr)
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			s.lgr.Warn("transport: write reply failed", logger.F("remote", remote), logger.F("error", err.Error()))
			return
		}
	}
}

func errorFrame(req wire.Frame, err error) wire.Frame {
	kind := errs.KindProtocol
	var re *errs.RingError
	if errors.As(err, &re) {
		kind = re.Kind
	}
	payload, _ := wire.EncodePayload(wire.ErrorReply{Kind: kind.String(), Message: err.Error()})
	return wire.Frame{
		RequestID: req.RequestID,
		Kind:      wire.KindError,
		Origin:    req.Origin,
		HopCount:  req.HopCount,
		Payload:   payload,
	}
}
