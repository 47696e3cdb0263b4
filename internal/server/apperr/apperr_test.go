package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_CodeAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *Error
		code   Code
		status int
	}{
		{"validation", Validation("bad"), CodeValidation, http.StatusBadRequest},
		{"exists", UserExists(), CodeUserExists, http.StatusConflict},
		{"credentials", InvalidCredentials(), CodeInvalidCredentials, http.StatusUnauthorized},
		{"token refresh", InvalidToken(http.StatusUnauthorized), CodeInvalidToken, http.StatusUnauthorized},
		{"token verify", InvalidToken(http.StatusBadRequest), CodeInvalidToken, http.StatusBadRequest},
		{"unauthorized", Unauthorized("no"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden(), CodeForbidden, http.StatusForbidden},
		{"csrf", CSRFInvalid(), CodeCSRFInvalid, http.StatusForbidden},
		{"rate", RateLimited(time.Second), CodeRateLimitExceeded, http.StatusTooManyRequests},
		{"locked", LoginLocked(time.Minute), CodeLoginLocked, http.StatusTooManyRequests},
		{"bad request", BadRequest("x"), CodeBadRequest, http.StatusBadRequest},
		{"not found", NotFound("x"), CodeNotFound, http.StatusNotFound},
		{"internal", Internal(errors.New("db down")), CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestInternal_HidesCauseFromMessage(t *testing.T) {
	cause := errors.New("pq: relation does not exist")
	e := Internal(cause)

	assert.NotContains(t, e.Message, "relation")
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "relation")
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	orig := LoginLocked(2 * time.Minute)
	wrapped := fmt.Errorf("login: %w", orig)
	got := From(wrapped)
	require.NotNil(t, got)
	assert.Same(t, orig, got)
	assert.Equal(t, 2*time.Minute, got.RetryAfter)

	foreign := From(errors.New("boom"))
	assert.Equal(t, CodeInternal, foreign.Code)
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", InvalidToken(http.StatusBadRequest))

	assert.True(t, errors.Is(err, &Error{Code: CodeInvalidToken}))
	assert.False(t, errors.Is(err, &Error{Code: CodeUserExists}))
	assert.Equal(t, CodeInvalidToken, CodeOf(err))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
}
