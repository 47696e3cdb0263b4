package services

import (
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/server/apperr"
)

// EventRecorder counts auth outcomes, e.g. ("login", "invalid_credentials").
type EventRecorder interface {
	AuthEvent(op, result string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// outcome maps an operation result to a metric label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperr.CodeOf(err)))
}
