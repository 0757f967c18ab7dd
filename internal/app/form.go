package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// SubmitOptions holds the callbacks invoked when a submit settles.
type SubmitOptions struct {
	OnSuccess func(domain.Complaint)
	OnError   func(error)
}

// FormStore holds the record being edited, its field errors, and the processing flag.
type FormStore struct {
	mu         sync.Mutex
	api        ComplaintAPI
	logger     Logger
	record     domain.Complaint
	errors     domain.FieldErrors
	processing bool
	generation uint64
}

// NewFormStore constructs a store seeded with initial.
func NewFormStore(api ComplaintAPI, initial domain.Complaint, logger Logger) *FormStore {
	return &FormStore{
		api:    api,
		logger: loggerOrDiscard(logger),
		record: initial.Clone(),
		errors: domain.FieldErrors{},
	}
}

// Data returns a copy of the current record.
func (f *FormStore) Data() domain.Complaint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record.Clone()
}

// SetData replaces the record. It does not touch history.
func (f *FormStore) SetData(record domain.Complaint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record = record.Clone()
}

// SetField merges the set keys of patch into the record. It does not touch history.
func (f *FormStore) SetField(patch domain.ComplaintPatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record = patch.Apply(f.record)
}

// Errors returns a copy of the field error map.
func (f *FormStore) Errors() domain.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.Clone()
}

// ClearFieldError drops the message for one field, typically after the user edits it.
func (f *FormStore) ClearFieldError(field string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errors, field)
}

// Processing reports whether a submit is in flight.
func (f *FormStore) Processing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processing
}

// Reset replaces the record, clears errors, and invalidates any in-flight response.
func (f *FormStore) Reset(record domain.Complaint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.record = record.Clone()
	f.errors = domain.FieldErrors{}
	f.processing = false
}

// Close invalidates any in-flight response without changing the record.
func (f *FormStore) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.processing = false
}

// Submit creates the record when it has no id, otherwise updates it.
// Every failure is returned and also delivered to opts.OnError, except a
// response that arrived after Reset or Close, which is dropped with ErrStaleResponse.
func (f *FormStore) Submit(ctx context.Context, opts SubmitOptions) (domain.Complaint, error) {
	f.mu.Lock()
	if f.processing {
		f.mu.Unlock()
		return domain.Complaint{}, settleError(opts, ErrSubmitInFlight)
	}
	f.processing = true
	generation := f.generation
	payload := f.record.Sanitized()
	f.mu.Unlock()

	var (
		saved domain.Complaint
		err   error
	)
	if payload.IsNew() {
		saved, err = f.api.CreateComplaint(ctx, payload)
	} else {
		saved, err = f.api.UpdateComplaint(ctx, payload)
	}

	f.mu.Lock()
	if generation != f.generation {
		f.mu.Unlock()
		f.logger.Debug("discarding stale submit response", "complaint_id", payload.ID, "err", err)
		return domain.Complaint{}, ErrStaleResponse
	}
	f.processing = false
	if err != nil {
		if verr, ok := AsValidationError(err); ok {
			f.errors = verr.Fields.Clone()
		}
		f.mu.Unlock()
		f.logger.Warn("complaint submit failed", "complaint_id", payload.ID, "err", err)
		return domain.Complaint{}, settleError(opts, fmt.Errorf("submit complaint: %w", err))
	}
	f.errors = domain.FieldErrors{}
	if saved.IsNew() && !payload.IsNew() {
		saved.ID = payload.ID
	}
	f.record = f.record.WithIdentity(saved)
	f.mu.Unlock()

	f.logger.Info("complaint saved", "complaint_id", saved.ID)
	if opts.OnSuccess != nil {
		opts.OnSuccess(saved.Clone())
	}
	return saved, nil
}

func settleError(opts SubmitOptions, err error) error {
	if opts.OnError != nil && !errors.Is(err, ErrStaleResponse) {
		opts.OnError(err)
	}
	return err
}
