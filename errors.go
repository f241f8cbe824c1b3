package duplexlink

import (
	"errors"
	"fmt"

	"github.com/dmora/duplexlink/internal/errfmt"
)

// Sentinel errors for non-protocol conditions: conditions that never cross
// the wire as a [ProtocolError] because they describe the state of the
// local transport itself.
var (
	// ErrClosed indicates an operation was attempted on a client or server
	// whose underlying transport has already shut down.
	ErrClosed = errors.New("duplexlink: transport closed")

	// ErrUnavailable indicates a stdio child process could not be spawned
	// (binary not found, not executable).
	ErrUnavailable = errors.New("duplexlink: child process unavailable")
)

// ErrorCategory classifies a [ProtocolError]. It is total: every failure
// that can cross the wire maps onto exactly one of these five values.
type ErrorCategory int

const (
	CategoryNotFound ErrorCategory = iota
	CategoryMethodNotAllowed
	CategoryBadRequest
	CategoryUnauthorized
	CategoryInternal
)

// String returns the wire name used in the {"error_type": ...} projection.
func (c ErrorCategory) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryMethodNotAllowed:
		return "method_not_allowed"
	case CategoryBadRequest:
		return "bad_request"
	case CategoryUnauthorized:
		return "unauthorized"
	case CategoryInternal:
		return "internal"
	default:
		return "internal"
	}
}

// httpStatusByCategory implements the deterministic, stable mapping
// required by spec §3: round-tripping Category→status→Category never
// changes category semantics for the five supported categories.
var httpStatusByCategory = map[ErrorCategory]int{
	CategoryNotFound:         404,
	CategoryMethodNotAllowed: 405,
	CategoryBadRequest:       400,
	CategoryUnauthorized:     401,
	CategoryInternal:         500,
}

// HTTPStatus returns the status code this category maps to on the wire.
func (c ErrorCategory) HTTPStatus() int {
	if s, ok := httpStatusByCategory[c]; ok {
		return s
	}
	return 500
}

// CategoryFromHTTPStatus maps a response status back to a category. Any
// status outside {400, 401, 404, 405, 500} collapses to CategoryInternal.
func CategoryFromHTTPStatus(status int) ErrorCategory {
	switch status {
	case 400:
		return CategoryBadRequest
	case 401:
		return CategoryUnauthorized
	case 404:
		return CategoryNotFound
	case 405:
		return CategoryMethodNotAllowed
	default:
		return CategoryInternal
	}
}

// ProtocolError is the single error type that can cross either transport's
// wire. Category is always one of the five [ErrorCategory] values; Cause
// carries the underlying displayable failure.
type ProtocolError struct {
	Category ErrorCategory
	Cause    error
}

// NewProtocolError wraps cause under category. A nil cause is replaced with
// an error built from category's description.
func NewProtocolError(category ErrorCategory, cause error) *ProtocolError {
	if cause == nil {
		cause = errors.New(category.String())
	}
	return &ProtocolError{Category: category, Cause: cause}
}

// Errorf builds a ProtocolError from a format string, in the style of
// fmt.Errorf.
func Errorf(category ErrorCategory, format string, args ...any) *ProtocolError {
	return &ProtocolError{Category: category, Cause: fmt.Errorf(format, args...)}
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("duplexlink: %s: %s", e.Category, e.Cause)
}

func (e *ProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ErrorPayload is the serializable projection of a ProtocolError used
// whenever the error must cross the wire.
type ErrorPayload struct {
	ErrorType   string `json:"error_type"`
	Description string `json:"description"`
}

// Payload returns the wire projection of e. Description is capped by
// errfmt.Truncate: a handler error can embed arbitrary upstream text (a
// stack trace, a driver message), and an unbounded string has no business
// riding either wire.
func (e *ProtocolError) Payload() ErrorPayload {
	return ErrorPayload{ErrorType: e.Category.String(), Description: errfmt.Truncate(e.Cause.Error())}
}

// ProtocolErrorFromPayload reconstructs a ProtocolError from its wire
// projection. An unrecognised error_type collapses to CategoryInternal.
func ProtocolErrorFromPayload(p ErrorPayload) *ProtocolError {
	return &ProtocolError{Category: categoryFromWireName(p.ErrorType), Cause: errors.New(p.Description)}
}

func categoryFromWireName(name string) ErrorCategory {
	switch name {
	case "not_found":
		return CategoryNotFound
	case "method_not_allowed":
		return CategoryMethodNotAllowed
	case "bad_request":
		return CategoryBadRequest
	case "unauthorized":
		return CategoryUnauthorized
	default:
		return CategoryInternal
	}
}

// AsProtocolError coerces any error into a *ProtocolError: if err already
// wraps one, it is returned unchanged; otherwise it is wrapped as Internal.
// Returns nil for a nil err.
func AsProtocolError(err error) *ProtocolError {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProtocolError{Category: CategoryInternal, Cause: err}
}
