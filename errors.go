package tokenauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/session"
)

// Error is the typed failure returned by every [Engine] flow. It carries the
// HTTP status the boundary should answer with, a client-safe message, and
// optional structured details.
//
// Two errors match under [errors.Is] when their codes are equal, so callers
// compare against the package-level kinds (ErrEmailTaken, ErrRateLimited, ...)
// regardless of the details attached to a particular instance.
type Error struct {
	Code       string
	Status     int
	Message    string
	Details    []FieldError
	RetryAfter time.Duration

	cause error
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the backend cause, if any. The cause is never rendered to
// clients.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the client may retry the same request later.
func (e *Error) Retryable() bool {
	return e != nil && (e.Code == ErrUnavailable.Code || e.Code == ErrRateLimited.Code)
}

func (e *Error) with(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func (e *Error) withDetails(details []FieldError) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

var (
	ErrValidationFailed = &Error{Code: "VALIDATION_FAILED", Status: http.StatusBadRequest, Message: "Validation failed"}
	ErrEmailTaken       = &Error{Code: "EMAIL_TAKEN", Status: http.StatusConflict, Message: "Email already registered"}
	ErrUsernameTaken    = &Error{Code: "USERNAME_TAKEN", Status: http.StatusConflict, Message: "Username already taken"}

	ErrInvalidCredentials = &Error{Code: "INVALID_CREDENTIALS", Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	ErrUnauthorized       = &Error{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrEmailNotVerified   = &Error{Code: "EMAIL_NOT_VERIFIED", Status: http.StatusForbidden, Message: "Email address not verified"}
	ErrForbidden          = &Error{Code: "FORBIDDEN", Status: http.StatusForbidden, Message: "Forbidden"}

	ErrTokenMissing          = &Error{Code: "TOKEN_MISSING", Status: http.StatusBadRequest, Message: "Token missing"}
	ErrTokenInvalid          = &Error{Code: "TOKEN_INVALID", Status: http.StatusForbidden, Message: "Invalid token"}
	ErrTokenExpired          = &Error{Code: "TOKEN_EXPIRED", Status: http.StatusForbidden, Message: "Token expired"}
	ErrSessionNotFound       = &Error{Code: "SESSION_NOT_FOUND", Status: http.StatusForbidden, Message: "Invalid refresh token"}
	ErrInvalidOrExpiredToken = &Error{Code: "INVALID_OR_EXPIRED_TOKEN", Status: http.StatusForbidden, Message: "Invalid or expired token"}

	ErrRateLimited = &Error{Code: "RATE_LIMITED", Status: http.StatusTooManyRequests, Message: "Too many requests. Please try again later."}
	ErrNotFound    = &Error{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: "User not found"}

	// ErrUnavailable is returned when a backend (store, repository, notifier)
	// timed out or could not be reached. The request may be retried.
	ErrUnavailable = &Error{Code: "UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: "Service temporarily unavailable"}
	ErrInternal    = &Error{Code: "INTERNAL", Status: http.StatusInternalServerError, Message: "Internal server error"}
)

// ErrUserNotFound is returned by [UserRepository] lookups that match nothing.
// Engine flows translate it; it never reaches the boundary as-is.
var ErrUserNotFound = errors.New("user not found")

func validationError(details ...FieldError) *Error {
	return ErrValidationFailed.withDetails(details)
}

func rateLimitedError(retryAfter time.Duration) *Error {
	e := ErrRateLimited.with(nil)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	e.RetryAfter = retryAfter
	return e
}

// backendError classifies a failure from an external collaborator. Timeouts,
// cancellations and unreachable Redis become ErrUnavailable; anything else is
// ErrInternal. Typed *Error values pass through untouched.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable):
		return ErrUnavailable.with(err)
	}
	return ErrInternal.with(err)
}

// AsError extracts the typed *Error from err, classifying untyped errors the
// way engine flows do.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	e, _ := asError(backendError(err))
	return e
}

func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// ValidationError builds an ErrValidationFailed carrying details. Boundaries
// use it for input problems they detect before calling the engine.
func ValidationError(details ...FieldError) *Error {
	return validationError(details...)
}
