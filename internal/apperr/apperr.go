// Package apperr classifies pipeline failures so callers can decide how to
// report them: reject to the client, redeliver the event, or surface for replay.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindNotFound        Kind = "NOT_FOUND"
	KindAuthorization   Kind = "AUTHORIZATION"
	KindConflict        Kind = "CONFLICT"
	KindExternalService Kind = "EXTERNAL_SERVICE"
	KindConsistency     Kind = "CONSISTENCY"
	KindInternal        Kind = "INTERNAL"
)

// Error is a classified error. Op names the operation that failed
// (e.g. "uploads.complete"), Msg is safe to show to API clients.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind and message so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == e.Msg && (t.Op == "" || t.Op == e.Op)
}

// ErrAlreadyCompleted is returned when a finalized upload session is completed again.
var ErrAlreadyCompleted = &Error{Kind: KindConflict, Msg: "upload already completed"}

// ErrSessionClosed is returned when an aborted upload session is used.
var ErrSessionClosed = &Error{Kind: KindConflict, Msg: "upload session is closed"}

func Validation(op, msg string) error { return &Error{Kind: KindValidation, Op: op, Msg: msg} }

func NotFound(op, msg string) error { return &Error{Kind: KindNotFound, Op: op, Msg: msg} }

func Authorization(op, msg string) error {
	return &Error{Kind: KindAuthorization, Op: op, Msg: msg}
}

// External wraps a failed call to the object store, transcoder or queue.
func External(op, msg string, err error) error {
	return &Error{Kind: KindExternalService, Op: op, Msg: msg, Err: err}
}

// Consistency reports an event that cannot be mapped onto a known video.
func Consistency(op, msg string, err error) error {
	return &Error{Kind: KindConsistency, Op: op, Msg: msg, Err: err}
}

// Internal wraps an unexpected failure of our own storage.
func Internal(op, msg string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Msg: msg, Err: err}
}

// WithOp returns a copy of a sentinel bound to op.
func WithOp(sentinel *Error, op string) error {
	e := *sentinel
	e.Op = op
	return &e
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when none is found.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message of a classified error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
