package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// ErrNotFound and related errors describe API and session failures.
var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnavailable    = errors.New("complaint api unavailable")
	ErrSubmitInFlight = errors.New("submit already in flight")
	ErrStaleResponse  = errors.New("stale response discarded")
	ErrSessionClosed  = errors.New("session closed")
	ErrNoSnapshot     = errors.New("no snapshot available")
)

// ValidationError reports a payload the API rejected, with per-field messages.
type ValidationError struct {
	Message string
	Fields  domain.FieldErrors
}

// Error implements error.
func (e *ValidationError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "validation failed"
	}
	if len(e.Fields) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (%s)", msg, strings.Join(e.Fields.Fields(), ", "))
}

// AsValidationError extracts a validation error from err, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
