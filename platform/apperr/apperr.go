// Package apperr is the error vocabulary shared by services and handlers.
// Services return *Error values (or wrap them); httpkit.HandleError turns the
// Kind into a status code and the Message into the response body.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	// KindConflict covers stale versions and disallowed lead transitions.
	KindConflict
	KindForbidden
	KindUnauthorized
	KindBadRequest
	KindInternal
	KindRateLimited
	KindUnavailable
)

var kindInfo = map[Kind]struct {
	name   string
	status int
}{
	KindNotFound:     {"not_found", http.StatusNotFound},
	KindValidation:   {"validation", http.StatusBadRequest},
	KindConflict:     {"conflict", http.StatusConflict},
	KindForbidden:    {"forbidden", http.StatusForbidden},
	KindUnauthorized: {"unauthorized", http.StatusUnauthorized},
	KindBadRequest:   {"bad_request", http.StatusBadRequest},
	KindInternal:     {"internal", http.StatusInternalServerError},
	KindRateLimited:  {"rate_limited", http.StatusTooManyRequests},
	KindUnavailable:  {"unavailable", http.StatusServiceUnavailable},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return "unknown"
}

// Error is a classified error. Message is safe to show to clients; Err is
// the cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, e.Message)
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps Kind to a status code; unknown kinds are 500.
func (e *Error) HTTPStatus() int {
	if info, ok := kindInfo[e.Kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err, keeping it reachable through errors.Is and errors.As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches a client-visible payload, such as per-field
// validation messages.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func RateLimited(message string) *Error  { return New(KindRateLimited, message) }
func Unavailable(message string) *Error  { return New(KindUnavailable, message) }

// GetKind returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
