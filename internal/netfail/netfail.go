// Package netfail turns raw transport errors into a closed set of tagged
// failures. Classification happens once, at the call site that talks to the
// network; everything downstream switches on [Kind] instead of re-probing the
// error chain.
package netfail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Kind enumerates the failure variants.
type Kind uint8

const (
	// KindTransport is any network failure that is neither a timeout nor a refused connection.
	KindTransport Kind = iota
	// KindTimeout covers deadline exceeded and i/o timeouts.
	KindTimeout
	// KindConnectionRefused means the remote end actively refused the connection.
	KindConnectionRefused
	// KindHTTPStatus means the remote answered with a non-success status code.
	KindHTTPStatus
	// KindDecode means the remote answered but the payload could not be understood.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection_refused"
	case KindHTTPStatus:
		return "http_status"
	case KindDecode:
		return "decode"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error is a classified network failure.
type Error struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("%s: %s %d", e.Op, e.Kind, e.Status)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus builds a KindHTTPStatus failure.
func HTTPStatus(op string, status int) *Error {
	return &Error{Op: op, Kind: KindHTTPStatus, Status: status}
}

// Decode builds a KindDecode failure.
func Decode(op string, err error) *Error {
	return &Error{Op: op, Kind: KindDecode, Err: err}
}

// Classify wraps err into an [*Error]. An err that is already classified is
// returned unchanged; nil stays nil.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Op: op, Kind: kindOf(err), Err: err}
}

// As extracts the classified failure from err's chain.
func As(err error) (*Error, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified, true
	}
	return nil, false
}

func kindOf(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	return KindTransport
}
