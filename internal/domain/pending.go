package domain

import (
	"fmt"
	"strings"
	"time"
)

// Queue key prefixes used to scope pending changes.
const (
	queueKeyUserPrefix      = "user:"
	queueKeyComplaintPrefix = "complaint:"
	queueKeyDraftPrefix     = "draft:"
)

// PendingChange stores one save that could not reach the API.
type PendingChange struct {
	ID       int64     `json:"id"`
	QueueKey string    `json:"queue_key"`
	DraftID  string    `json:"draft_id"`
	Record   Complaint `json:"record"`
	QueuedAt time.Time `json:"queued_at"`
}

// NewPendingChange validates the key and deep-copies record. ID is assigned by storage.
func NewPendingChange(queueKey, draftID string, record Complaint, now time.Time) (PendingChange, error) {
	queueKey = strings.TrimSpace(queueKey)
	if err := ValidateQueueKey(queueKey); err != nil {
		return PendingChange{}, err
	}
	return PendingChange{
		QueueKey: queueKey,
		DraftID:  strings.TrimSpace(draftID),
		Record:   record.Clone(),
		QueuedAt: now.UTC(),
	}, nil
}

// UserQueueKey scopes the queue to every complaint edited by one user.
func UserQueueKey(userID string) string {
	return queueKeyUserPrefix + strings.TrimSpace(userID)
}

// ComplaintQueueKey scopes the queue to one saved complaint.
func ComplaintQueueKey(complaintID string) string {
	return queueKeyComplaintPrefix + strings.TrimSpace(complaintID)
}

// DraftQueueKey scopes the queue to one unsaved draft.
func DraftQueueKey(draftID string) string {
	return queueKeyDraftPrefix + strings.TrimSpace(draftID)
}

// ValidateQueueKey checks for a known prefix followed by a non-empty identifier.
func ValidateQueueKey(key string) error {
	for _, prefix := range []string{queueKeyUserPrefix, queueKeyComplaintPrefix, queueKeyDraftPrefix} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			if strings.TrimSpace(rest) == "" {
				return fmt.Errorf("%w: %q", ErrInvalidQueueKey, key)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidQueueKey, key)
}
