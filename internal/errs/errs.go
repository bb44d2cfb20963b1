// Package errs defines the closed set of error kinds the ring surfaces to
// callers, per the error handling design: protocol, not-found, transport,
// membership, and usage errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed enum of ring error categories.
type Kind int

const (
	KindProtocol Kind = iota
	KindNotFound
	KindTransport
	KindMembership
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindTransport:
		return "transport"
	case KindMembership:
		return "membership"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// RingError wraps an underlying error with its Kind, so callers can
// errors.As to the kind without parsing strings.
type RingError struct {
	Kind Kind
	Err  error
}

func (e *RingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RingError) Unwrap() error { return e.Err }

// New wraps err with the given kind.
func New(k Kind, err error) *RingError {
	return &RingError{Kind: k, Err: err}
}

// Wrap formats a message and wraps it with the given kind.
func Wrap(k Kind, format string, args ...any) *RingError {
	return &RingError{Kind: k, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err carries the given kind.
func Is(err error, k Kind) bool {
	var re *RingError
	if errors.As(err, &re) {
		return re.Kind == k
	}
	return false
}

// Sentinel errors used throughout the node/routing layers.
var (
	ErrHopCountExceeded = errors.New("hop count exceeded: routing loop detected")
	ErrUnknownKind      = errors.New("unknown frame kind")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrNoBootstrap      = errors.New("bootstrap endpoint unreachable")
	ErrTimeout          = errors.New("operation timed out")
	ErrConnRefused      = errors.New("connection refused")
)
