// Package apperr defines the error taxonomy surfaced by the chat pipeline.
// Every failure a request can hit maps to exactly one Kind so callers can
// render the matching remediation.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of request failure.
type Kind string

const (
	KindNotAuthenticated Kind = "not_authenticated"
	KindInvalidRequest   Kind = "invalid_request"
	KindNotFound         Kind = "not_found"
	KindNotAllowed       Kind = "not_allowed"
	KindBlocked          Kind = "blocked"
	KindAgeNotConfirmed  Kind = "age_not_confirmed"
	KindMatureNotEnabled Kind = "mature_not_enabled"
	KindLimitReached     Kind = "limit_reached"
	KindPremiumRequired  Kind = "premium_required"
	KindTimeout          Kind = "timeout"
	KindEmptyReply       Kind = "empty_reply"
	KindGenerationFailed Kind = "generation_failed"
	KindStorageFailed    Kind = "storage_failed"
)

// Error is a request-scoped failure with a distinguishable kind.
type Error struct {
	Kind    Kind
	Message string

	// Limit and Used are set for KindLimitReached.
	Limit int
	Used  int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status equivalent of the error kind.
func (e *Error) Status() int {
	return StatusOf(e.Kind)
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotAuthenticated is returned when no user is attached to the request.
func NotAuthenticated() *Error {
	return New(KindNotAuthenticated, "authentication required")
}

// NotFound is returned when an id does not resolve.
func NotFound(what string) *Error {
	return New(KindNotFound, what+" not found")
}

// NotAllowed is returned on ownership mismatch.
func NotAllowed(what string) *Error {
	return New(KindNotAllowed, what+" is not owned by the requester")
}

// Invalid is returned for malformed input.
func Invalid(message string) *Error {
	return New(KindInvalidRequest, message)
}

// Blocked is returned for profiles flagged as blocked.
func Blocked() *Error {
	return New(KindBlocked, "account is blocked")
}

// LimitReached is returned when the daily quota is exhausted.
func LimitReached(limit, used int) *Error {
	return &Error{
		Kind:    KindLimitReached,
		Message: fmt.Sprintf("daily limit of %d messages reached", limit),
		Limit:   limit,
		Used:    used,
	}
}

// PremiumRequired is returned when a feature needs expanded access.
func PremiumRequired() *Error {
	return New(KindPremiumRequired, "this feature requires premium access")
}

// StorageFailed wraps a persistence failure.
func StorageFailed(op string, err error) *Error {
	return Wrap(KindStorageFailed, op, err)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusOf maps a kind to an HTTP status code.
func StatusOf(kind Kind) int {
	switch kind {
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAllowed, KindBlocked, KindAgeNotConfirmed, KindMatureNotEnabled:
		return http.StatusForbidden
	case KindLimitReached, KindPremiumRequired:
		return http.StatusPaymentRequired
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindEmptyReply, KindGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
