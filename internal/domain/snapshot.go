package domain

import "time"

// Snapshot stores one immutable copy of the record taken before an edit.
type Snapshot struct {
	Record  Complaint `json:"record"`
	TakenAt time.Time `json:"taken_at"`
}

// NewSnapshot deep-copies record so later edits cannot reach the stored value.
func NewSnapshot(record Complaint, now time.Time) Snapshot {
	return Snapshot{
		Record:  record.Clone(),
		TakenAt: now.UTC(),
	}
}
