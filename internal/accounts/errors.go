package accounts

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestrator failure for the transport layer.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindConflict
	KindUpstreamAuth
	KindUnsupportedProvider
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindUpstreamAuth:
		return "upstream_auth"
	case KindUnsupportedProvider:
		return "unsupported_provider"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unexpected"
	}
}

// Error is returned by every Service method. Msg is safe to show to callers;
// Err carries the cause for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindConflict }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func validation(msg string) *Error { return newError(KindValidation, msg, nil) }

func unexpected(cause error) *Error {
	return newError(KindUnexpected, "internal error", cause)
}

// KindOf returns the Kind of err, or KindUnexpected for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
