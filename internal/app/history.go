package app

import (
	"slices"
	"sync"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// DefaultHistoryDepth caps the undo stack when no explicit depth is configured.
const DefaultHistoryDepth = 100

// HistoryState holds a copy of the tracker stacks and unsaved flag.
type HistoryState struct {
	Past              []domain.Snapshot `json:"past"`
	Future            []domain.Snapshot `json:"future"`
	HasUnsavedChanges bool              `json:"has_unsaved_changes"`
}

// RecordStore is the part of the form store the tracker writes through.
type RecordStore interface {
	Data() domain.Complaint
	SetData(domain.Complaint)
}

// HistoryTracker records snapshots before each logical edit and serves undo/redo.
// It never applies a snapshot itself; callers do that with SetData.
type HistoryTracker struct {
	mu       sync.Mutex
	store    RecordStore
	clock    Clock
	maxDepth int
	past     []domain.Snapshot
	future   []domain.Snapshot
	unsaved  bool
	baseline domain.Complaint
}

// NewHistoryTracker constructs a tracker over store. maxDepth <= 0 selects DefaultHistoryDepth.
func NewHistoryTracker(store RecordStore, clock Clock, maxDepth int) *HistoryTracker {
	if maxDepth <= 0 {
		maxDepth = DefaultHistoryDepth
	}
	return &HistoryTracker{
		store:    store,
		clock:    clockOrNow(clock),
		maxDepth: maxDepth,
		baseline: store.Data(),
	}
}

// UpdateData snapshots the current record, clears redo, marks unsaved, then stores next.
func (h *HistoryTracker) UpdateData(next domain.Complaint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(&h.past, domain.NewSnapshot(h.store.Data(), h.clock()))
	h.future = nil
	h.unsaved = true
	h.store.SetData(next)
}

// Apply runs edit against the current record and, when it reports a change,
// records the result like UpdateData. The read and the write happen under one
// lock so concurrent edits cannot start from the same record.
func (h *HistoryTracker) Apply(edit func(domain.Complaint) (domain.Complaint, bool)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.store.Data()
	next, changed := edit(current)
	if !changed {
		return false
	}
	h.pushLocked(&h.past, domain.NewSnapshot(current, h.clock()))
	h.future = nil
	h.unsaved = true
	h.store.SetData(next)
	return true
}

// Undo pops the newest past snapshot and parks the current record on the redo stack.
//
// The unsaved flag is recomputed against the last saved record rather than
// from the stack depth: undoing back to what was saved clears it, and undoing
// past a save sets it even though no edit was pushed since.
func (h *HistoryTracker) Undo() (domain.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.past) == 0 {
		return domain.Snapshot{}, false
	}
	snap := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.pushLocked(&h.future, domain.NewSnapshot(h.store.Data(), h.clock()))
	h.unsaved = !snap.Record.SameContent(h.baseline)
	return snap, true
}

// Redo is the mirror of Undo over the future stack.
func (h *HistoryTracker) Redo() (domain.Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.future) == 0 {
		return domain.Snapshot{}, false
	}
	snap := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.pushLocked(&h.past, domain.NewSnapshot(h.store.Data(), h.clock()))
	h.unsaved = !snap.Record.SameContent(h.baseline)
	return snap, true
}

// ResetUnsavedChanges marks the current record as saved. History is kept.
func (h *HistoryTracker) ResetUnsavedChanges() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsaved = false
	h.baseline = h.store.Data()
}

// CanUndo reports whether a past snapshot exists.
func (h *HistoryTracker) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.past) > 0
}

// CanRedo reports whether a future snapshot exists.
func (h *HistoryTracker) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.future) > 0
}

// HasUnsavedChanges reports the unsaved flag.
func (h *HistoryTracker) HasUnsavedChanges() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsaved
}

// State returns a copy of the stacks, oldest first.
func (h *HistoryTracker) State() HistoryState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HistoryState{
		Past:              slices.Clone(h.past),
		Future:            slices.Clone(h.future),
		HasUnsavedChanges: h.unsaved,
	}
}

// pushLocked appends snap and drops the oldest entries beyond maxDepth.
func (h *HistoryTracker) pushLocked(stack *[]domain.Snapshot, snap domain.Snapshot) {
	*stack = append(*stack, snap)
	if len(*stack) > h.maxDepth {
		*stack = append([]domain.Snapshot(nil), (*stack)[len(*stack)-h.maxDepth:]...)
	}
}
