package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// NoticeLevel identifies the severity of a session notice.
type NoticeLevel string

// NoticeLevel values.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarn    NoticeLevel = "warn"
	NoticeError   NoticeLevel = "error"
)

// maxNotices bounds the retained notice log.
const maxNotices = 20

// Notice is one transient message for the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// SaveOutcome describes where a save ended up.
type SaveOutcome string

// SaveOutcome values.
const (
	SaveSynced SaveOutcome = "synced"
	SaveQueued SaveOutcome = "queued"
	SaveFailed SaveOutcome = "failed"
)

// SessionConfig holds configuration for one editing session.
type SessionConfig struct {
	DraftID          string
	AutoSaveInterval time.Duration
	AutoSaveEnabled  bool
	TickEvery        time.Duration
	HistoryDepth     int
	Clock            Clock
	IDGen            IDGenerator
	Logger           Logger
}

// SessionStatus is the read model consumed by every presentation surface.
type SessionStatus struct {
	Record            domain.Complaint   `json:"record"`
	Errors            domain.FieldErrors `json:"errors"`
	DraftID           string             `json:"draft_id"`
	Online            bool               `json:"online"`
	QueueState        QueueState         `json:"queue_state"`
	PendingCount      int                `json:"pending_count"`
	HasUnsavedChanges bool               `json:"has_unsaved_changes"`
	CanUndo           bool               `json:"can_undo"`
	CanRedo           bool               `json:"can_redo"`
	Processing        bool               `json:"processing"`
	AutoSaveEnabled   bool               `json:"auto_save_enabled"`
	SecondsUntilSave  int                `json:"seconds_until_save"`
	Text              string             `json:"status_text"`
}

// Session composes the form store, history tracker, auto-save scheduler, and a shared offline queue.
type Session struct {
	form     *FormStore
	history  *HistoryTracker
	autosave *AutoSaveScheduler
	queue    *OfflineQueue

	draftID   string
	tickEvery time.Duration
	clock     Clock
	logger    Logger

	ctx    context.Context
	cancel context.CancelFunc

	// editMu serializes read-modify-write sequences on the record.
	editMu sync.Mutex

	mu          sync.Mutex
	notices     []Notice
	closed      bool
	running     bool
	unsubReplay func()
}

// NewSession builds a session over initial. The auto-save ticker starts with Start.
func NewSession(ctx context.Context, api ComplaintAPI, queue *OfflineQueue, initial domain.Complaint, cfg SessionConfig) *Session {
	clock := clockOrNow(cfg.Clock)
	logger := loggerOrDiscard(cfg.Logger)
	draftID := strings.TrimSpace(cfg.DraftID)
	if draftID == "" && cfg.IDGen != nil {
		draftID = cfg.IDGen()
	}
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Session{
		queue:     queue,
		draftID:   draftID,
		tickEvery: cfg.TickEvery,
		clock:     clock,
		logger:    logger,
		ctx:       sctx,
		cancel:    cancel,
	}
	s.form = NewFormStore(api, initial, logger)
	s.history = NewHistoryTracker(s.form, clock, cfg.HistoryDepth)
	s.autosave = NewAutoSaveScheduler(cfg.AutoSaveInterval, cfg.AutoSaveEnabled, s.history.HasUnsavedChanges, s.autoSave, clock)
	if queue != nil {
		s.unsubReplay = queue.OnReplayed(s.adoptReplayed)
	}
	return s
}

// OpenSession loads complaintID from the API, or starts a blank complaint when it is empty.
func OpenSession(ctx context.Context, api ComplaintAPI, queue *OfflineQueue, complaintID string, cfg SessionConfig) (*Session, error) {
	complaintID = strings.TrimSpace(complaintID)
	initial := domain.NewComplaint()
	if complaintID != "" {
		loaded, err := api.GetComplaint(ctx, complaintID)
		if err != nil {
			return nil, fmt.Errorf("load complaint %q: %w", complaintID, err)
		}
		initial = loaded
	}
	return NewSession(ctx, api, queue, initial, cfg), nil
}

// Start runs the auto-save ticker until Close and replays any queue left by
// an earlier run. Calling it twice is a no-op.
func (s *Session) Start() {
	s.mu.Lock()
	if s.running || s.closed {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	go s.autosave.Run(s.ctx, s.tickEvery)
	if s.queue != nil {
		go s.resumeQueue()
	}
}

func (s *Session) resumeQueue() {
	report, err := s.queue.Resume(s.ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("resume queued changes failed", "err", err)
		}
		return
	}
	if report.Attempted > 0 {
		s.logger.Info("resumed queued changes", "succeeded", report.Succeeded, "failed", report.Failed)
	}
}

// Close stops the ticker, drops queue notifications, and invalidates in-flight responses.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubReplay
	s.mu.Unlock()

	s.cancel()
	s.form.Close()
	if unsub != nil {
		unsub()
	}
}

// DraftID returns the client-side identity used to group queued saves of a new complaint.
func (s *Session) DraftID() string {
	return s.draftID
}

// Record returns the current record.
func (s *Session) Record() domain.Complaint {
	return s.form.Data()
}

// FieldErrors returns the current field error map.
func (s *Session) FieldErrors() domain.FieldErrors {
	return s.form.Errors()
}

// SetField parses raw for the named field and records it as one undoable edit.
func (s *Session) SetField(name, raw string) error {
	patch, err := domain.PatchFromField(name, raw)
	if err != nil {
		return err
	}
	if err := s.ApplyPatch(patch); err != nil {
		return err
	}
	s.form.ClearFieldError(strings.TrimSpace(name))
	return nil
}

// ApplyPatch records patch as one undoable edit. Patches that change nothing are ignored.
func (s *Session) ApplyPatch(patch domain.ComplaintPatch) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()
	s.history.Apply(func(current domain.Complaint) (domain.Complaint, bool) {
		next := patch.Apply(current)
		return next, !next.Equal(current)
	})
	return nil
}

// Undo applies the previous snapshot and reports whether one existed.
func (s *Session) Undo() bool {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.applySnapshot(snap)
	return true
}

// Redo applies the next snapshot and reports whether one existed.
func (s *Session) Redo() bool {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.applySnapshot(snap)
	return true
}

// applySnapshot writes snap into the store, keeping any id the server assigned since it was taken.
func (s *Session) applySnapshot(snap domain.Snapshot) {
	s.form.SetData(snap.Record.WithIdentity(s.form.Data()))
}

// Save submits the record when online, or queues it when offline. Queued
// entries for the same record are replayed first; if any are still pending
// afterwards the save queues behind them so replay cannot overwrite it.
func (s *Session) Save(ctx context.Context) (SaveOutcome, error) {
	if s.isClosed() {
		return SaveFailed, ErrSessionClosed
	}
	if s.queue != nil {
		if !s.queue.IsOnline() {
			return s.saveQueued(ctx, "Offline: change queued for sync")
		}
		behind, err := s.settleQueue(ctx)
		if err != nil {
			s.logger.Warn("settle queued changes before save failed", "err", err)
		}
		if behind {
			return s.saveQueued(ctx, "Earlier changes still pending: change queued for sync")
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	submitted := s.form.Data()
	_, err := s.form.Submit(ctx, SubmitOptions{
		OnSuccess: func(saved domain.Complaint) {
			s.addNotice(NoticeSuccess, "Complaint saved")
		},
		OnError: func(err error) {
			if verr, ok := AsValidationError(err); ok {
				s.addNotice(NoticeError, verr.Error())
				return
			}
			if errors.Is(err, ErrSubmitInFlight) {
				return
			}
			s.addNotice(NoticeError, "Save failed: "+err.Error())
		},
	})
	if err != nil {
		return SaveFailed, err
	}
	s.markSavedIfUnchanged(submitted)
	return SaveSynced, nil
}

// settleQueue replays the queue when it holds entries for the current record
// and reports whether any of them are still pending.
func (s *Session) settleQueue(ctx context.Context) (bool, error) {
	pending, err := s.queue.HasPendingFor(ctx, s.draftID, s.form.Data().ID)
	if err != nil || !pending {
		return false, err
	}
	if _, err := s.queue.Replay(ctx); err != nil {
		return false, err
	}
	return s.queue.HasPendingFor(ctx, s.draftID, s.form.Data().ID)
}

func (s *Session) saveQueued(ctx context.Context, notice string) (SaveOutcome, error) {
	submitted := s.form.Data()
	change, err := s.queue.AddPendingChange(ctx, s.draftID, submitted)
	if err != nil {
		s.addNotice(NoticeError, "Could not queue change: "+err.Error())
		return SaveFailed, err
	}
	s.markSavedIfUnchanged(submitted)
	s.logger.Debug("save redirected to offline queue", "pending_id", change.ID)
	s.addNotice(NoticeInfo, notice)
	return SaveQueued, nil
}

// markSavedIfUnchanged clears the unsaved flag unless the user edited while the save was running.
func (s *Session) markSavedIfUnchanged(submitted domain.Complaint) {
	if s.form.Data().SameContent(submitted) {
		s.history.ResetUnsavedChanges()
	}
}

// autoSave is the scheduler callback; it runs on the ticker goroutine.
func (s *Session) autoSave() {
	outcome, err := s.Save(s.ctx)
	if err != nil {
		s.logger.Debug("auto-save did not complete", "outcome", outcome, "err", err)
		return
	}
	s.logger.Debug("auto-save completed", "outcome", outcome)
}

// adoptReplayed gives a new record the id its queued create received on replay.
func (s *Session) adoptReplayed(result ReplayResult) {
	if s.isClosed() || result.Change.DraftID == "" || result.Change.DraftID != s.draftID {
		return
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()
	current := s.form.Data()
	if current.IsNew() && !result.Saved.IsNew() {
		s.form.SetData(current.WithIdentity(result.Saved))
		s.logger.Info("adopted server id from replay", "complaint_id", result.Saved.ID, "draft_id", s.draftID)
	}
	s.addNotice(NoticeSuccess, "Queued change synced")
}

// ToggleAutoSave flips auto-save and returns the new setting.
func (s *Session) ToggleAutoSave() bool {
	enabled := s.autosave.Toggle()
	if enabled {
		s.addNotice(NoticeInfo, "Auto-save enabled")
	} else {
		s.addNotice(NoticeInfo, "Auto-save disabled")
	}
	return enabled
}

// TickAutoSave runs one scheduler evaluation immediately.
func (s *Session) TickAutoSave() bool {
	return s.autosave.Tick()
}

// Replay drains the offline queue now.
func (s *Session) Replay(ctx context.Context) (ReplayReport, error) {
	if s.queue == nil {
		return ReplayReport{}, nil
	}
	return s.queue.Replay(ctx)
}

// PendingChanges lists the queued entries for this session's queue scope.
func (s *Session) PendingChanges(ctx context.Context) ([]domain.PendingChange, error) {
	if s.queue == nil {
		return nil, nil
	}
	return s.queue.PendingChanges(ctx)
}

// History returns a copy of the undo/redo stacks.
func (s *Session) History() HistoryState {
	return s.history.State()
}

// AutoSave returns the scheduler state.
func (s *Session) AutoSave() AutoSaveState {
	return s.autosave.State()
}

// Notices returns the retained notices, oldest first.
func (s *Session) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

// LatestNotice returns the newest notice, if any.
func (s *Session) LatestNotice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.notices) == 0 {
		return Notice{}, false
	}
	return s.notices[len(s.notices)-1], true
}

func (s *Session) addNotice(level NoticeLevel, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, Notice{Level: level, Message: message, At: s.clock().UTC()})
	if len(s.notices) > maxNotices {
		s.notices = append([]Notice(nil), s.notices[len(s.notices)-maxNotices:]...)
	}
}

// Status returns the combined read model.
func (s *Session) Status() SessionStatus {
	autosave := s.autosave.State()
	status := SessionStatus{
		Record:            s.form.Data(),
		Errors:            s.form.Errors(),
		DraftID:           s.draftID,
		Online:            true,
		QueueState:        QueueOnlineIdle,
		HasUnsavedChanges: s.history.HasUnsavedChanges(),
		CanUndo:           s.history.CanUndo(),
		CanRedo:           s.history.CanRedo(),
		Processing:        s.form.Processing(),
		AutoSaveEnabled:   autosave.Enabled,
		SecondsUntilSave:  ceilSeconds(autosave.TimeUntilNextSave(s.clock())),
	}
	if s.queue != nil {
		status.Online = s.queue.IsOnline()
		status.QueueState = s.queue.State()
		status.PendingCount = s.queue.PendingCount()
	}
	status.Text = StatusText(status)
	return status
}

// StatusText renders the persistent status line for status.
func StatusText(status SessionStatus) string {
	parts := make([]string, 0, 3)
	if !status.Online {
		parts = append(parts, "Offline Mode")
	}
	if status.PendingCount > 0 {
		parts = append(parts, fmt.Sprintf("%d changes pending sync", status.PendingCount))
	}
	switch {
	case status.Processing:
		parts = append(parts, "Saving...")
	case status.HasUnsavedChanges && status.AutoSaveEnabled:
		parts = append(parts, fmt.Sprintf("Unsaved changes (Auto-saving in %ds)", status.SecondsUntilSave))
	case status.HasUnsavedChanges:
		parts = append(parts, "Unsaved changes")
	case status.PendingCount == 0:
		parts = append(parts, "All changes saved")
	}
	return strings.Join(parts, " | ")
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
