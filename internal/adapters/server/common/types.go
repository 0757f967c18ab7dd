// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports a missing complaint upstream.
var ErrNotFound = errors.New("not found")

// ErrSessionUnavailable reports a closed or unconfigured editing session.
var ErrSessionUnavailable = errors.New("session unavailable")

// ErrNothingToApply reports undo/redo with an empty stack.
var ErrNothingToApply = errors.New("nothing to apply")

// ErrUpstreamUnavailable reports a complaint API that could not be reached.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrUnauthorized reports a rejected session token.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConflict reports a save rejected because another save is running.
var ErrConflict = errors.New("conflict")

// SessionView is the full editor state returned by every operation.
type SessionView struct {
	Status  app.SessionStatus `json:"status"`
	Notices []app.Notice      `json:"notices"`
}

// SetFieldRequest changes one editable field from its textual form.
type SetFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SaveResult reports where a save ended up.
type SaveResult struct {
	Outcome app.SaveOutcome `json:"outcome"`
	Session SessionView     `json:"session"`
}

// ReplaySummary reports one queue replay pass.
type ReplaySummary struct {
	Attempted int         `json:"attempted"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Errors    []string    `json:"errors,omitempty"`
	Session   SessionView `json:"session"`
}

// PendingChangeItem summarizes one queued save.
type PendingChangeItem struct {
	ID              int64     `json:"id"`
	DraftID         string    `json:"draft_id,omitempty"`
	ComplaintID     string    `json:"complaint_id,omitempty"`
	ComplaintNumber string    `json:"complaint_number,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`
	Status          string    `json:"status"`
	QueuedAt        time.Time `json:"queued_at"`
}

// PendingChangeItemFrom summarizes change for transport.
func PendingChangeItemFrom(change domain.PendingChange) PendingChangeItem {
	return PendingChangeItem{
		ID:              change.ID,
		DraftID:         change.DraftID,
		ComplaintID:     change.Record.ID,
		ComplaintNumber: change.Record.ComplaintNumber,
		CustomerName:    change.Record.CustomerName,
		Status:          string(change.Record.Status),
		QueuedAt:        change.QueuedAt,
	}
}

// QueueView lists the pending changes for the session's queue scope.
type QueueView struct {
	State   app.QueueState      `json:"state"`
	Online  bool                `json:"online"`
	Changes []PendingChangeItem `json:"changes"`
}

// ValidationFailure carries per-field messages from a rejected save.
type ValidationFailure struct {
	Message string
	Fields  domain.FieldErrors
}

// Error implements error.
func (v *ValidationFailure) Error() string {
	return v.Message
}

// Unwrap exposes ErrInvalidRequest to errors.Is.
func (v *ValidationFailure) Unwrap() error {
	return ErrInvalidRequest
}

// SessionService is the editing surface shared by the HTTP and MCP adapters.
type SessionService interface {
	SessionStatus(context.Context) (SessionView, error)
	SetField(context.Context, SetFieldRequest) (SessionView, error)
	Undo(context.Context) (SessionView, error)
	Redo(context.Context) (SessionView, error)
	Save(context.Context) (SaveResult, error)
	ToggleAutoSave(context.Context) (SessionView, error)
	ReplayQueue(context.Context) (ReplaySummary, error)
	PendingChanges(context.Context) (QueueView, error)
}
