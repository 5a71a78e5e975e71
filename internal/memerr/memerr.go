// Package memerr provides the structured error type shared across the
// memory-retrieval core. Every component that can fail returns (or wraps)
// an *Error so callers can branch on Kind instead of parsing messages.
package memerr

import "fmt"

// Kind is a closed enumeration of the error kinds the core can surface.
type Kind string

const (
	InvalidArgument Kind = "INVALID_ARGUMENT"
	Shape           Kind = "SHAPE"
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	Storage         Kind = "STORAGE"
	Upstream        Kind = "UPSTREAM"
	RateLimited     Kind = "RATE_LIMITED"
	Cancelled       Kind = "CANCELLED"
	Internal        Kind = "INTERNAL"
)

// retryable reports whether operations failing with this kind are worth
// retrying without caller intervention.
func (k Kind) retryable() bool {
	switch k {
	case Upstream, RateLimited, Storage:
		return true
	default:
		return false
	}
}

// Error is the structured error type returned by the core.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is / errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, &Error{Kind: X}) match by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value of additional context. Returns e for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Retryable reports whether the error's kind is generically retryable.
func (e *Error) Retryable() bool {
	return e.Kind.retryable()
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Convenience constructors, one per kind.

func Invalid(format string, args ...any) *Error {
	return New(InvalidArgument, fmt.Sprintf(format, args...))
}

func ShapeErr(format string, args ...any) *Error {
	return New(Shape, fmt.Sprintf(format, args...))
}

func NotFoundErr(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func ConflictErr(existingID string, format string, args ...any) *Error {
	return New(Conflict, fmt.Sprintf(format, args...)).WithDetail("existing_id", existingID)
}

func StorageErr(cause error, format string, args ...any) *Error {
	return Wrap(Storage, fmt.Sprintf(format, args...), cause)
}

func UpstreamErr(cause error, format string, args ...any) *Error {
	return Wrap(Upstream, fmt.Sprintf(format, args...), cause)
}

func RateLimitedErr(format string, args ...any) *Error {
	return New(RateLimited, fmt.Sprintf(format, args...))
}

func CancelledErr() *Error {
	return New(Cancelled, "operation cancelled")
}

func InternalErr(format string, args ...any) *Error {
	return New(Internal, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	if asError(err, &e) {
		return e.Kind
	}
	return ""
}

// asError is a tiny local errors.As to avoid importing errors just for this.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
