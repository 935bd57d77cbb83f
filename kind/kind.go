// Package kind defines the structured error taxonomy shared by every
// subsystem and the string form it takes once it crosses the wire.
package kind

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way it will be rendered to a remote peer.
type Kind int

const (
	// Other is the catch-all kind; it always carries a description.
	Other Kind = iota
	NotFound
	PermissionDenied
	BrokenPipe
	InvalidData
	UnexpectedEOF
	Unsupported
	Interrupted
)

// String renders the kind using the lower_snake_case wire vocabulary.
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case BrokenPipe:
		return "broken_pipe"
	case InvalidData:
		return "invalid_data"
	case UnexpectedEOF:
		return "unexpected_eof"
	case Unsupported:
		return "unsupported"
	case Interrupted:
		return "interrupted"
	default:
		return "other"
	}
}

// ParseKind maps a wire string back to a Kind, defaulting to Other for
// anything unrecognized (forward-compatible with future kinds).
func ParseKind(s string) Kind {
	switch s {
	case "not_found":
		return NotFound
	case "permission_denied":
		return PermissionDenied
	case "broken_pipe":
		return BrokenPipe
	case "invalid_data":
		return InvalidData
	case "unexpected_eof":
		return UnexpectedEOF
	case "unsupported":
		return Unsupported
	case "interrupted":
		return Interrupted
	default:
		return Other
	}
}

// Error is a structured error carrying a Kind plus a human description.
// It supports errors.Is against a bare Kind and errors.Unwrap for the
// wrapped cause, if any.
type Error struct {
	Kind        Kind
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Kind.String()
	}
	return e.Description
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, kind.NotFound) work by comparing against a
// target that is itself a Kind value wrapped as an error via Of.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error of the given kind with a formatted description.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Description: fmt.Sprintf(format, args...)}
}

// Of returns a bare, causeless *Error of kind k usable as an errors.Is
// target: errors.Is(err, kind.Of(kind.NotFound)).
func Of(k Kind) *Error { return &Error{Kind: k} }

// Wrap annotates cause with a Kind, preserving it for errors.Unwrap/As.
func Wrap(cause error, k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Description: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Other when err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}
