// Package apperr defines the closed error taxonomy shared by the store,
// the command state machine and the conversation driver.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed or conflicting input.
	KindValidation
	// KindNotFound marks a missing or inaccessible task, group or pending ref.
	KindNotFound
	// KindForbidden marks an authenticated but unauthorized mutation.
	KindForbidden
	// KindPrecondition marks a business-rule violation such as completing
	// a task with open prerequisites.
	KindPrecondition
	// KindState marks a command issued in a machine state that does not accept it.
	KindState
	// KindTransport marks a failed LLM call.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindPrecondition:
		return "precondition_failed"
	case KindState:
		return "state"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "unknown error"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func Precondition(format string, args ...any) *Error {
	return New(KindPrecondition, format, args...)
}

func State(format string, args ...any) *Error {
	return New(KindState, format, args...)
}

func Transport(err error, msg string) *Error {
	return Wrap(KindTransport, err, msg)
}

// KindOf returns the kind carried by err, or KindUnknown when err is not an
// *Error anywhere in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
