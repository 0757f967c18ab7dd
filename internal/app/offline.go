package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// QueueState identifies the offline queue state machine position.
type QueueState string

// QueueState values.
const (
	QueueOnlineIdle      QueueState = "online-idle"
	QueueOnlineReplaying QueueState = "online-replaying"
	QueueOfflineQueuing  QueueState = "offline-queuing"
)

// ReplayResult describes one replayed pending change.
type ReplayResult struct {
	Change domain.PendingChange
	Saved  domain.Complaint
	Err    error
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Attempted int            `json:"attempted"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	// Skipped counts draft entries held back because the draft's create failed.
	Skipped   int            `json:"skipped"`
	Results   []ReplayResult `json:"-"`
}

// OfflineQueueConfig holds configuration for an offline queue.
type OfflineQueueConfig struct {
	QueueKey string
	Clock    Clock
	Logger   Logger
}

// OfflineQueue persists saves made while offline and replays them in order on reconnect.
type OfflineQueue struct {
	mu       sync.Mutex
	replayMu sync.Mutex

	store  PendingStore
	api    ComplaintAPI
	key    string
	clock  Clock
	logger Logger

	online  bool
	state   QueueState
	pending int

	listeners    map[int]func(ReplayResult)
	nextListener int

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewOfflineQueue loads the pending count for cfg.QueueKey and subscribes to conn.
// A nil conn starts online and only changes through SetOnline.
func NewOfflineQueue(ctx context.Context, store PendingStore, api ComplaintAPI, conn Connectivity, cfg OfflineQueueConfig) (*OfflineQueue, error) {
	if err := domain.ValidateQueueKey(cfg.QueueKey); err != nil {
		return nil, err
	}
	count, err := store.CountPendingChanges(ctx, cfg.QueueKey)
	if err != nil {
		return nil, fmt.Errorf("count pending changes: %w", err)
	}
	online := true
	if conn != nil {
		online = conn.Online()
	}
	qctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q := &OfflineQueue{
		store:     store,
		api:       api,
		key:       cfg.QueueKey,
		clock:     clockOrNow(cfg.Clock),
		logger:    loggerOrDiscard(cfg.Logger),
		online:    online,
		state:     stateFor(online),
		pending:   count,
		listeners: map[int]func(ReplayResult){},
		ctx:       qctx,
		cancel:    cancel,
	}
	if conn != nil {
		q.unsubscribe = conn.Subscribe(func(online bool) {
			if _, err := q.SetOnline(q.ctx, online); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("offline queue transition failed", "queue_key", q.key, "online", online, "err", err)
			}
		})
	}
	return q, nil
}

// QueueKey returns the storage scope of this queue.
func (q *OfflineQueue) QueueKey() string {
	return q.key
}

// AddPendingChange persists one change immediately.
func (q *OfflineQueue) AddPendingChange(ctx context.Context, draftID string, record domain.Complaint) (domain.PendingChange, error) {
	change, err := domain.NewPendingChange(q.key, draftID, record, q.clock())
	if err != nil {
		return domain.PendingChange{}, err
	}
	change, err = q.store.AppendPendingChange(ctx, change)
	if err != nil {
		return domain.PendingChange{}, fmt.Errorf("append pending change: %w", err)
	}
	q.mu.Lock()
	q.pending++
	q.mu.Unlock()
	q.logger.Info("queued offline change", "queue_key", q.key, "pending_id", change.ID, "draft_id", change.DraftID)
	return change, nil
}

// SetOnline applies a connectivity transition. Going from offline to online
// replays the queue when it is not empty.
func (q *OfflineQueue) SetOnline(ctx context.Context, online bool) (ReplayReport, error) {
	q.mu.Lock()
	was := q.online
	q.online = online
	if !online {
		q.state = QueueOfflineQueuing
		q.mu.Unlock()
		if was {
			q.logger.Warn("connectivity lost; queuing saves", "queue_key", q.key)
		}
		return ReplayReport{}, nil
	}
	if was {
		q.mu.Unlock()
		return ReplayReport{}, nil
	}
	pending := q.pending
	if pending == 0 {
		q.state = QueueOnlineIdle
	}
	q.mu.Unlock()

	q.logger.Info("connectivity restored", "queue_key", q.key, "pending", pending)
	if pending == 0 {
		return ReplayReport{}, nil
	}
	return q.Replay(ctx)
}

// Resume replays entries left by an earlier run when the queue is online and
// not empty. It is a no-op otherwise.
func (q *OfflineQueue) Resume(ctx context.Context) (ReplayReport, error) {
	q.mu.Lock()
	online, pending := q.online, q.pending
	q.mu.Unlock()
	if !online || pending == 0 {
		return ReplayReport{}, nil
	}
	q.logger.Info("resuming queued changes", "queue_key", q.key, "pending", pending)
	return q.Replay(ctx)
}

// HasPendingFor reports whether any queued entry belongs to the record with id
// or to the unsaved draft draftID.
func (q *OfflineQueue) HasPendingFor(ctx context.Context, draftID, id string) (bool, error) {
	q.mu.Lock()
	pending := q.pending
	q.mu.Unlock()
	if pending == 0 {
		return false, nil
	}
	changes, err := q.store.ListPendingChanges(ctx, q.key)
	if err != nil {
		return false, fmt.Errorf("list pending changes: %w", err)
	}
	for _, change := range changes {
		if draftID != "" && change.DraftID == draftID {
			return true, nil
		}
		if id != "" && change.Record.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// Replay attempts every pending change in insertion order. A failed entry stays
// queued and the pass continues with the next one. When a draft's create fails,
// the draft's later creates are held back for this pass so they cannot each
// create their own complaint.
func (q *OfflineQueue) Replay(ctx context.Context) (ReplayReport, error) {
	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	q.mu.Lock()
	if !q.online {
		q.mu.Unlock()
		return ReplayReport{}, nil
	}
	q.state = QueueOnlineReplaying
	q.mu.Unlock()
	defer q.finishReplay(ctx)

	changes, err := q.store.ListPendingChanges(ctx, q.key)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("list pending changes: %w", err)
	}

	report := ReplayReport{Results: make([]ReplayResult, 0, len(changes))}
	blocked := map[string]bool{}
	for i := range changes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		change := changes[i]
		if change.Record.IsNew() && blocked[change.DraftID] {
			report.Skipped++
			continue
		}
		result := q.replayOne(ctx, change)
		report.Attempted++
		report.Results = append(report.Results, result)
		created := change.Record.IsNew() && !result.Saved.IsNew()
		if created {
			q.stampDraft(ctx, changes[i+1:], change.DraftID, result.Saved)
		}
		if result.Err != nil {
			report.Failed++
			q.logger.Warn("pending change replay failed", "queue_key", q.key, "pending_id", change.ID, "err", result.Err)
			switch {
			case created:
				// Created but not dequeued: the next pass must update, not create again.
				q.stampDraft(ctx, changes[i:i+1], change.DraftID, result.Saved)
			case change.Record.IsNew() && change.DraftID != "":
				blocked[change.DraftID] = true
			}
			continue
		}
		report.Succeeded++
		q.notify(result)
	}
	q.logger.Info("replay pass finished", "queue_key", q.key, "attempted", report.Attempted, "succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// replayOne submits one change and removes it once the API confirms.
func (q *OfflineQueue) replayOne(ctx context.Context, change domain.PendingChange) ReplayResult {
	var (
		saved domain.Complaint
		err   error
	)
	record := change.Record.Sanitized()
	if record.IsNew() {
		saved, err = q.api.CreateComplaint(ctx, record)
	} else {
		saved, err = q.api.UpdateComplaint(ctx, record)
	}
	if err != nil {
		return ReplayResult{Change: change, Err: err}
	}
	if saved.IsNew() {
		saved.ID = record.ID
	}
	if err := q.store.DeletePendingChange(ctx, change.ID); err != nil {
		return ReplayResult{Change: change, Saved: saved, Err: fmt.Errorf("delete replayed change %d: %w", change.ID, err)}
	}
	return ReplayResult{Change: change, Saved: saved}
}

// stampDraft writes a newly assigned id onto queued creates of the same draft
// so they replay as updates instead of duplicate creates.
func (q *OfflineQueue) stampDraft(ctx context.Context, changes []domain.PendingChange, draftID string, saved domain.Complaint) {
	if draftID == "" {
		return
	}
	for i := range changes {
		if changes[i].DraftID != draftID || !changes[i].Record.IsNew() {
			continue
		}
		changes[i].Record = changes[i].Record.WithIdentity(saved)
		if err := q.store.UpdatePendingChange(ctx, changes[i]); err != nil {
			q.logger.Error("stamp pending change id failed", "queue_key", q.key, "pending_id", changes[i].ID, "err", err)
		}
	}
}

func (q *OfflineQueue) finishReplay(ctx context.Context) {
	count, err := q.store.CountPendingChanges(context.WithoutCancel(ctx), q.key)
	q.mu.Lock()
	defer q.mu.Unlock()
	if err == nil {
		q.pending = count
	} else {
		q.logger.Error("count pending changes failed", "queue_key", q.key, "err", err)
	}
	q.state = stateFor(q.online)
}

// OnReplayed registers fn for every successful replay and returns its unsubscribe func.
func (q *OfflineQueue) OnReplayed(fn func(ReplayResult)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := q.nextListener
	q.nextListener++
	q.listeners[id] = fn
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

func (q *OfflineQueue) notify(result ReplayResult) {
	q.mu.Lock()
	listeners := make([]func(ReplayResult), 0, len(q.listeners))
	for _, fn := range q.listeners {
		listeners = append(listeners, fn)
	}
	q.mu.Unlock()
	for _, fn := range listeners {
		fn(result)
	}
}

// PendingChanges lists the persisted entries in replay order.
func (q *OfflineQueue) PendingChanges(ctx context.Context) ([]domain.PendingChange, error) {
	return q.store.ListPendingChanges(ctx, q.key)
}

// PendingCount returns the number of entries awaiting replay.
func (q *OfflineQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// IsOnline reports the last connectivity signal.
func (q *OfflineQueue) IsOnline() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// State returns the current state machine position.
func (q *OfflineQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Close stops connectivity-driven replays.
func (q *OfflineQueue) Close() {
	q.cancel()
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
}

func stateFor(online bool) QueueState {
	if !online {
		return QueueOfflineQueuing
	}
	return QueueOnlineIdle
}
