// Package apperr carries the outcome kinds that services report to callers.
// Every kind has a stable machine-readable code and the HTTP status it maps
// to; transports render them without inspecting the wrapped cause.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeUserExists         Code = "USER_EXISTS"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeCSRFInvalid        Code = "CSRF_INVALID"
	CodeRateLimitExceeded  Code = "RATE_LIMIT_EXCEEDED"
	CodeLoginLocked        Code = "LOGIN_LOCKED"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is an expected failure of an operation.
type Error struct {
	Code    Code
	Status  int
	Message string

	// RetryAfter is set for throttling kinds.
	RetryAfter time.Duration

	// Err is the underlying cause. It is logged, never shown to callers.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code Code, status int, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func Validation(msg string) *Error {
	return newError(CodeValidation, http.StatusBadRequest, msg)
}

func UserExists() *Error {
	return newError(CodeUserExists, http.StatusConflict, "user with this email or username already exists")
}

func InvalidCredentials() *Error {
	return newError(CodeInvalidCredentials, http.StatusUnauthorized, "invalid email or password")
}

// InvalidToken reports an absent, expired, used, revoked or mistyped token.
// status is 401 for refresh and 400 for verification and reset.
func InvalidToken(status int) *Error {
	return newError(CodeInvalidToken, status, "invalid or expired token")
}

func Unauthorized(msg string) *Error {
	return newError(CodeUnauthorized, http.StatusUnauthorized, msg)
}

func Forbidden() *Error {
	return newError(CodeForbidden, http.StatusForbidden, "insufficient permissions")
}

func CSRFInvalid() *Error {
	return newError(CodeCSRFInvalid, http.StatusForbidden, "invalid CSRF token")
}

func RateLimited(retryAfter time.Duration) *Error {
	e := newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "too many requests, please try again later")
	e.RetryAfter = retryAfter
	return e
}

func LoginLocked(retryAfter time.Duration) *Error {
	e := newError(CodeLoginLocked, http.StatusTooManyRequests, "too many failed login attempts, please try again later")
	e.RetryAfter = retryAfter
	return e
}

func BadRequest(msg string) *Error {
	return newError(CodeBadRequest, http.StatusBadRequest, msg)
}

func NotFound(msg string) *Error {
	return newError(CodeNotFound, http.StatusNotFound, msg)
}

// Internal wraps an unexpected storage or crypto failure.
func Internal(err error) *Error {
	e := newError(CodeInternal, http.StatusInternalServerError, "internal server error")
	e.Err = err
	return e
}

// From returns err as an *Error. Anything that is not already one becomes
// an internal error wrapping it. From(nil) is nil.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if e := From(err); e != nil {
		return e.Code
	}
	return ""
}
