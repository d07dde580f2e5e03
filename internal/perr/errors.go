// Package perr names the error-kind taxonomy of the wire-protocol layer:
// small sentinel-wrapped types, in the style of cmn/cos's error helpers,
// so callers can branch on kind with errors.As/errors.Is rather than
// string matching.
package perr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindProtocolFraming
	KindCommandSyntax
	KindResourceNotFound
	KindRepositoryFailure
	KindFatalIO
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindProtocolFraming:
		return "protocol-framing"
	case KindCommandSyntax:
		return "command-syntax"
	case KindResourceNotFound:
		return "resource-not-found"
	case KindRepositoryFailure:
		return "repository-failure"
	case KindFatalIO:
		return "fatal-io"
	case KindInvariantViolation:
		return "invariant-violation"
	default:
		return "internal"
	}
}

// Error is the concrete wrapper carrying a Kind alongside the cause.
type Error struct {
	Kind  Kind
	What  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.What, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.What)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(k Kind, format string, a ...any) *Error {
	return &Error{Kind: k, What: fmt.Sprintf(format, a...)}
}

func Wrap(k Kind, cause error, format string, a ...any) *Error {
	return &Error{Kind: k, What: fmt.Sprintf(format, a...), Cause: cause}
}

// Is reports whether the first *Error in err's chain carries the given
// Kind; an *Error nested under another *Error is not consulted.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Convenience constructors, one per error kind above except KindInternal
// (build that one with New).

func NotFound(format string, a ...any) *Error {
	return New(KindResourceNotFound, format, a...)
}

func Syntax(format string, a ...any) *Error {
	return New(KindCommandSyntax, format, a...)
}

func Framing(format string, a ...any) *Error {
	return New(KindProtocolFraming, format, a...)
}

func Conflict(format string, a ...any) *Error {
	return New(KindInvariantViolation, format, a...)
}

func Repository(cause error, format string, a ...any) *Error {
	return Wrap(KindRepositoryFailure, cause, format, a...)
}

func FatalIO(cause error, format string, a ...any) *Error {
	return Wrap(KindFatalIO, cause, format, a...)
}
