package reservation

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of a coordinator error.  The
// transport layer maps kinds to status codes.
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindPermissionDenied       Kind = "PERMISSION_DENIED"
	KindInvalidState           Kind = "INVALID_STATE"
	KindFull                   Kind = "FULL"
	KindAlreadyMember          Kind = "ALREADY_MEMBER"
	KindInvalidArgument        Kind = "INVALID_ARGUMENT"
	KindConcurrentModification Kind = "CONCURRENT_MODIFICATION"
	KindUnavailable            Kind = "UNAVAILABLE"
)

// Error is returned by every Coordinator operation that fails for an
// expected reason.
type Error struct {
	Kind    Kind   // category
	Op      string // operation that failed, e.g. "reservation.Coordinator.Approve"
	Message string // human readable detail
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks; they match any *Error of the same kind.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrFull                   = &Error{Kind: KindFull}
	ErrAlreadyMember          = &Error{Kind: KindAlreadyMember}
	ErrInvalidArgument        = &Error{Kind: KindInvalidArgument}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrUnavailable            = &Error{Kind: KindUnavailable}
)

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func wrapError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}
