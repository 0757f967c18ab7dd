package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
)

// Session is the subset of *app.Session the adapter drives.
type Session interface {
	Status() app.SessionStatus
	Notices() []app.Notice
	SetField(name, raw string) error
	Undo() bool
	Redo() bool
	Save(ctx context.Context) (app.SaveOutcome, error)
	ToggleAutoSave() bool
	Replay(ctx context.Context) (app.ReplayReport, error)
	PendingChanges(ctx context.Context) ([]domain.PendingChange, error)
}

// SessionAdapter exposes one editing session through SessionService.
type SessionAdapter struct {
	session Session
}

var _ SessionService = (*SessionAdapter)(nil)

// NewSessionAdapter wraps session for the transport adapters.
func NewSessionAdapter(session Session) *SessionAdapter {
	return &SessionAdapter{session: session}
}

// SessionStatus returns the current editor state.
func (a *SessionAdapter) SessionStatus(ctx context.Context) (SessionView, error) {
	if err := a.ready(ctx); err != nil {
		return SessionView{}, err
	}
	return a.view(), nil
}

// SetField applies one field edit.
func (a *SessionAdapter) SetField(ctx context.Context, req SetFieldRequest) (SessionView, error) {
	if err := a.ready(ctx); err != nil {
		return SessionView{}, err
	}
	field := strings.TrimSpace(req.Field)
	if field == "" {
		return SessionView{}, fmt.Errorf("%w: field is required", ErrInvalidRequest)
	}
	if err := a.session.SetField(field, req.Value); err != nil {
		return SessionView{}, mapError(err)
	}
	return a.view(), nil
}

// Undo reverts the last edit.
func (a *SessionAdapter) Undo(ctx context.Context) (SessionView, error) {
	if err := a.ready(ctx); err != nil {
		return SessionView{}, err
	}
	if !a.session.Undo() {
		return SessionView{}, fmt.Errorf("%w: undo: %w", ErrNothingToApply, app.ErrNoSnapshot)
	}
	return a.view(), nil
}

// Redo reapplies the last undone edit.
func (a *SessionAdapter) Redo(ctx context.Context) (SessionView, error) {
	if err := a.ready(ctx); err != nil {
		return SessionView{}, err
	}
	if !a.session.Redo() {
		return SessionView{}, fmt.Errorf("%w: redo: %w", ErrNothingToApply, app.ErrNoSnapshot)
	}
	return a.view(), nil
}

// Save submits the record, or queues it while offline.
func (a *SessionAdapter) Save(ctx context.Context) (SaveResult, error) {
	if err := a.ready(ctx); err != nil {
		return SaveResult{}, err
	}
	outcome, err := a.session.Save(ctx)
	if err != nil {
		return SaveResult{Outcome: outcome, Session: a.view()}, mapError(err)
	}
	return SaveResult{Outcome: outcome, Session: a.view()}, nil
}

// ToggleAutoSave flips the auto-save flag.
func (a *SessionAdapter) ToggleAutoSave(ctx context.Context) (SessionView, error) {
	if err := a.ready(ctx); err != nil {
		return SessionView{}, err
	}
	a.session.ToggleAutoSave()
	return a.view(), nil
}

// ReplayQueue drains the offline queue now.
func (a *SessionAdapter) ReplayQueue(ctx context.Context) (ReplaySummary, error) {
	if err := a.ready(ctx); err != nil {
		return ReplaySummary{}, err
	}
	report, err := a.session.Replay(ctx)
	if err != nil {
		return ReplaySummary{}, mapError(err)
	}
	summary := ReplaySummary{
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	}
	for _, result := range report.Results {
		if result.Err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("pending change %d: %v", result.Change.ID, result.Err))
		}
	}
	summary.Session = a.view()
	return summary, nil
}

// PendingChanges lists queued saves.
func (a *SessionAdapter) PendingChanges(ctx context.Context) (QueueView, error) {
	if err := a.ready(ctx); err != nil {
		return QueueView{}, err
	}
	changes, err := a.session.PendingChanges(ctx)
	if err != nil {
		return QueueView{}, mapError(err)
	}
	status := a.session.Status()
	out := QueueView{
		State:   status.QueueState,
		Online:  status.Online,
		Changes: make([]PendingChangeItem, 0, len(changes)),
	}
	for _, change := range changes {
		out.Changes = append(out.Changes, PendingChangeItemFrom(change))
	}
	return out, nil
}

func (a *SessionAdapter) ready(ctx context.Context) error {
	if a == nil || a.session == nil {
		return ErrSessionUnavailable
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("request canceled: %w", err)
	}
	return nil
}

func (a *SessionAdapter) view() SessionView {
	return SessionView{
		Status:  a.session.Status(),
		Notices: a.session.Notices(),
	}
}

// mapError translates app and domain errors into transport sentinels.
func mapError(err error) error {
	if verr, ok := app.AsValidationError(err); ok {
		return &ValidationFailure{Message: verr.Error(), Fields: verr.Fields.Clone()}
	}
	switch {
	case errors.Is(err, domain.ErrUnknownField), errors.Is(err, domain.ErrInvalidFieldValue):
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	case errors.Is(err, app.ErrSessionClosed):
		return fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, app.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case errors.Is(err, app.ErrSubmitInFlight):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, app.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	default:
		return err
	}
}
