// Package apperr classifies failures independently of the transport that
// eventually reports them.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindPermission
	KindNotFound
	KindConflict
	KindDependency
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	default:
		return "internal"
	}
}

// Error carries a kind and a message that is safe to show to callers. The
// wrapped error keeps the full context for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

func Authentication(format string, args ...any) error {
	return newError(KindAuthentication, nil, format, args...)
}

func Permission(format string, args ...any) error {
	return newError(KindPermission, nil, format, args...)
}

func NotFound(format string, args ...any) error {
	return newError(KindNotFound, nil, format, args...)
}

func Conflict(err error, format string, args ...any) error {
	return newError(KindConflict, err, format, args...)
}

func Dependency(err error, format string, args ...any) error {
	return newError(KindDependency, err, format, args...)
}

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-safe message of a classified error.
func Message(err error) (string, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg, true
	}
	return "", false
}
