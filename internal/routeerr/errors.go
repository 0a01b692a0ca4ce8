// Package routeerr classifies core routing-engine errors into five
// kinds: invalid input, resource unavailable, not found, transient, and
// internal. The core has no HTTP surface of its own — an out-of-scope
// collaborator is responsible for mapping Kind to whatever status/shape
// its transport needs.
package routeerr

import "trailrouter/internal/errors"

// Kind classifies an error for the caller's retry/reporting policy.
type Kind int

const (
	// KindInvalidInput marks malformed requests: bad coordinates, NaN
	// weights, an oversized bbox, too few waypoints, a non-positive loop
	// distance. Never retryable.
	KindInvalidInput Kind = iota
	// KindUnavailable marks a missing or unreadable backing resource
	// (OSM extract, DEM). Fatal at startup; per-request it degrades
	// gracefully where that is acceptable (elevation falls back to None).
	KindUnavailable
	// KindNotFound marks a semantic "no answer exists" outcome: no path
	// between two points, no loop candidate satisfying constraints.
	KindNotFound
	// KindTransient marks a retryable failure in a dependency the
	// request can still be satisfied without (elevation service
	// timeout, disk cache read error).
	KindTransient
	// KindInternal marks a builder/invariant violation. Retrying at the
	// caller is safe because the core is idempotent for identical
	// inputs.
	KindInternal
)

// String renders the Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindUnavailable:
		return "unavailable"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the classified error type returned across core component
// boundaries. Context cancellation and deadline errors are the
// exception: the pipeline returns those as-is, unwrapped.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New builds a classified Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap classifies an existing error, preserving it as the cause for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}

	return e.message
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is reports whether err is a *Error of the given kind. Used as
// routeerr.Is(err, routeerr.KindNotFound) by callers that only care
// about classification, not identity.
func Is(err error, kind Kind) bool {
	var classified *Error
	if !errors.As(err, &classified) {
		return false
	}

	return classified.kind == kind
}

// InvalidInput is a convenience constructor for the most common kind.
func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}

// NotFound is a convenience constructor.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Internal wraps cause as an internal-kind error.
func Internal(cause error, message string) *Error {
	return Wrap(KindInternal, cause, message)
}

// Transient wraps cause as a transient-kind error.
func Transient(cause error, message string) *Error {
	return Wrap(KindTransient, cause, message)
}

// Unavailable wraps cause as a resource-unavailable-kind error.
func Unavailable(cause error, message string) *Error {
	return Wrap(KindUnavailable, cause, message)
}
