package protocol

import (
	"errors"
	"fmt"
)

// Kind names the class of a protocol error. It is sent to the peer in the
// "exception" field of an error response.
type Kind string

const (
	KindDecode        Kind = "DecodeError"
	KindValidation    Kind = "ValidationError"
	KindUnknownAction Kind = "UnknownActionError"
	KindHardware      Kind = "HardwareError"
	KindTransport     Kind = "TransportError"
	KindTimeout       Kind = "TimeoutError"
	KindInternal      Kind = "InternalError"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrDecode        = &Error{Kind: KindDecode}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrUnknownAction = &Error{Kind: KindUnknownAction}
	ErrHardware      = &Error{Kind: KindHardware}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrTimeout       = &Error{Kind: KindTimeout}
)

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

// Errorf builds an Error of the given kind. The format supports %w.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindInternal
}
