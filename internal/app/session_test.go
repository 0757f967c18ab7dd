package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskerco/complaintdesk/internal/domain"
)

type sessionFixture struct {
	api     *fakeAPI
	store   *memPendingStore
	conn    *fakeConnectivity
	clock   *fakeClock
	queue   *OfflineQueue
	session *Session
}

func newSessionFixture(t *testing.T, online bool, initial domain.Complaint) sessionFixture {
	t.Helper()
	f := sessionFixture{
		api:   newFakeAPI(),
		store: newMemPendingStore(),
		conn:  newFakeConnectivity(online),
		clock: newFakeClock(),
	}
	queue, err := NewOfflineQueue(context.Background(), f.store, f.api, f.conn, OfflineQueueConfig{
		QueueKey: domain.UserQueueKey("u1"),
		Clock:    f.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewOfflineQueue() error = %v", err)
	}
	f.queue = queue
	f.session = NewSession(context.Background(), f.api, queue, initial, SessionConfig{
		DraftID:          "draft-1",
		AutoSaveInterval: 30 * time.Second,
		AutoSaveEnabled:  true,
		Clock:            f.clock.Now,
	})
	t.Cleanup(func() {
		f.session.Close()
		queue.Close()
	})
	return f
}

func TestSessionScenarioUndoRedo(t *testing.T) {
	f := newSessionFixture(t, true, domain.NewComplaint())
	s := f.session

	if err := s.SetField(domain.FieldStatus, "in-progress"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if err := s.SetField(domain.FieldStatus, "closed"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if !s.Undo() {
		t.Fatal("Undo() = false")
	}
	status := s.Status()
	if status.Record.Status != domain.StatusInProgress || !status.CanRedo {
		t.Fatalf("expected in-progress with canRedo, got %q canRedo=%v", status.Record.Status, status.CanRedo)
	}
	if !s.Redo() {
		t.Fatal("Redo() = false")
	}
	if got := s.Record().Status; got != domain.StatusClosed {
		t.Fatalf("expected closed after redo, got %q", got)
	}
}

func TestSessionSetFieldIgnoresNoopAndRejectsBadInput(t *testing.T) {
	f := newSessionFixture(t, true, domain.NewComplaint())
	s := f.session
	if err := s.SetField(domain.FieldStatus, "open"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if s.Status().CanUndo || s.Status().HasUnsavedChanges {
		t.Fatal("expected unchanged value not to create history")
	}
	if err := s.SetField("favourite_colour", "blue"); !errors.Is(err, domain.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
}

func TestSessionSaveOnlineCreatesAndClearsUnsaved(t *testing.T) {
	f := newSessionFixture(t, true, domain.NewComplaint())
	s := f.session
	if err := s.SetField(domain.FieldCustomerName, "Lakshmi"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}

	outcome, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if outcome != SaveSynced {
		t.Fatalf("expected synced, got %q", outcome)
	}
	status := s.Status()
	if status.Record.ID != "c-1" || status.HasUnsavedChanges || !status.CanUndo {
		t.Fatalf("unexpected status after save %#v", status)
	}
	if status.Text != "All changes saved" {
		t.Fatalf("unexpected status text %q", status.Text)
	}
	notice, ok := s.LatestNotice()
	if !ok || notice.Level != NoticeSuccess {
		t.Fatalf("expected success notice, got %#v", notice)
	}

	// Undo after a create keeps the server id so the next save is an update.
	if !s.Undo() {
		t.Fatal("Undo() = false")
	}
	if s.Record().ID != "c-1" {
		t.Fatalf("expected id to survive undo, got %q", s.Record().ID)
	}
	if _, err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	calls := f.api.Calls()
	if calls[len(calls)-1].Method != "PUT" {
		t.Fatalf("expected PUT after undo, got %s", calls[len(calls)-1].Method)
	}
}

func TestSessionSaveValidationFailure(t *testing.T) {
	f := newSessionFixture(t, true, domain.NewComplaint())
	f.api.failCall(1, &ValidationError{Message: "invalid", Fields: domain.FieldErrors{"customer_name": "required"}})
	s := f.session
	if err := s.SetField(domain.FieldRemarks, "no name yet"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}

	outcome, err := s.Save(context.Background())
	if outcome != SaveFailed || err == nil {
		t.Fatalf("expected failed save, got %q %v", outcome, err)
	}
	if s.FieldErrors()["customer_name"] != "required" {
		t.Fatalf("expected inline field error, got %#v", s.FieldErrors())
	}
	if !s.Status().HasUnsavedChanges {
		t.Fatal("expected unsaved flag retained after failure")
	}
	notice, _ := s.LatestNotice()
	if notice.Level != NoticeError {
		t.Fatalf("expected error notice, got %#v", notice)
	}

	if err := s.SetField(domain.FieldCustomerName, "Arjun"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if _, ok := s.FieldErrors()["customer_name"]; ok {
		t.Fatal("expected editing a field to clear its error")
	}
}

func TestSessionSaveOfflineQueues(t *testing.T) {
	f := newSessionFixture(t, false, domain.NewComplaint())
	s := f.session
	if err := s.SetField(domain.FieldCustomerName, "Farah"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}

	outcome, err := s.Save(context.Background())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if outcome != SaveQueued {
		t.Fatalf("expected queued, got %q", outcome)
	}
	if len(f.api.Calls()) != 0 {
		t.Fatal("expected no API call while offline")
	}
	status := s.Status()
	if status.PendingCount != 1 || status.HasUnsavedChanges {
		t.Fatalf("unexpected status %#v", status)
	}
	if status.Text != "Offline Mode | 1 changes pending sync" {
		t.Fatalf("unexpected status text %q", status.Text)
	}
	notice, _ := s.LatestNotice()
	if notice.Level != NoticeInfo {
		t.Fatalf("expected informational notice, got %#v", notice)
	}

	f.conn.Set(true)
	status = s.Status()
	if status.PendingCount != 0 || status.Record.ID != "c-1" {
		t.Fatalf("expected replay to sync and adopt id, got %#v", status)
	}
	changes, err := f.store.ListPendingChanges(context.Background(), f.queue.QueueKey())
	if err != nil {
		t.Fatalf("ListPendingChanges() error = %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected empty queue, got %d", len(changes))
	}
}

func TestSessionAutoSaveTick(t *testing.T) {
	f := newSessionFixture(t, true, savedComplaint("c-7", ""))
	s := f.session
	if err := s.SetField(domain.FieldRemarks, "bring spare belt"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	f.clock.Advance(10 * time.Second)
	if got := s.Status().Text; got != "Unsaved changes (Auto-saving in 20s)" {
		t.Fatalf("unexpected status text %q", got)
	}
	if s.TickAutoSave() {
		t.Fatal("expected no save before the interval")
	}
	f.clock.Advance(20 * time.Second)
	if !s.TickAutoSave() {
		t.Fatal("expected auto-save to fire at the interval")
	}
	if s.Status().HasUnsavedChanges {
		t.Fatal("expected auto-save to clear unsaved")
	}
	calls := f.api.Calls()
	if len(calls) != 1 || calls[0].Method != "PUT" || calls[0].Record.Remarks != "bring spare belt" {
		t.Fatalf("unexpected calls %#v", calls)
	}

	if s.ToggleAutoSave() {
		t.Fatal("expected ToggleAutoSave() to disable")
	}
	if err := s.SetField(domain.FieldRemarks, "changed again"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if got := s.Status().Text; got != "Unsaved changes" {
		t.Fatalf("unexpected status text %q", got)
	}
}

func TestSessionCloseRejectsFurtherWork(t *testing.T) {
	f := newSessionFixture(t, true, domain.NewComplaint())
	s := f.session
	s.Start()
	s.Close()
	s.Close()
	if err := s.SetField(domain.FieldRemarks, "late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := s.Save(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestOpenSessionLoadsRecord(t *testing.T) {
	api := newFakeAPI()
	api.stored["c-3"] = savedComplaint("c-3", "loaded")
	s, err := OpenSession(context.Background(), api, nil, "c-3", SessionConfig{})
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	defer s.Close()
	if s.Record().Remarks != "loaded" {
		t.Fatalf("unexpected record %#v", s.Record())
	}
	if !s.Status().Online {
		t.Fatal("expected a session without queue to report online")
	}

	if _, err := OpenSession(context.Background(), api, nil, "missing", SessionConfig{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatusTextVariants(t *testing.T) {
	cases := []struct {
		status SessionStatus
		want   string
	}{
		{SessionStatus{Online: true}, "All changes saved"},
		{SessionStatus{Online: false}, "Offline Mode | All changes saved"},
		{SessionStatus{Online: true, PendingCount: 2}, "2 changes pending sync"},
		{SessionStatus{Online: true, HasUnsavedChanges: true, AutoSaveEnabled: true, SecondsUntilSave: 5}, "Unsaved changes (Auto-saving in 5s)"},
		{SessionStatus{Online: true, Processing: true}, "Saving..."},
	}
	for _, tc := range cases {
		if got := StatusText(tc.status); got != tc.want {
			t.Fatalf("StatusText(%#v) = %q, want %q", tc.status, got, tc.want)
		}
	}
	if !strings.Contains(StatusText(SessionStatus{Online: false, PendingCount: 3}), "3 changes pending sync") {
		t.Fatal("expected pending count in offline status")
	}
}

func TestSessionOnlineSaveSettlesQueuedDraftCreate(t *testing.T) {
	f := newSessionFixture(t, false, domain.NewComplaint())
	s := f.session
	ctx := context.Background()

	if err := s.SetField(domain.FieldRemarks, "offline"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if outcome, err := s.Save(ctx); err != nil || outcome != SaveQueued {
		t.Fatalf("expected queued save, got %q err=%v", outcome, err)
	}
	f.api.failCall(1, ErrUnavailable)
	f.conn.Set(true)
	if f.queue.PendingCount() != 1 {
		t.Fatalf("expected failed create to stay queued, got %d", f.queue.PendingCount())
	}

	if err := s.SetField(domain.FieldRemarks, "online"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	outcome, err := s.Save(ctx)
	if err != nil || outcome != SaveSynced {
		t.Fatalf("expected synced save, got %q err=%v", outcome, err)
	}
	var got []string
	for _, call := range f.api.Calls() {
		got = append(got, call.Method+" "+call.Record.Remarks)
	}
	want := []string{"POST offline", "POST offline", "PUT online"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	if len(f.api.stored) != 1 || f.api.stored["c-1"].Remarks != "online" {
		t.Fatalf("expected one complaint with the latest edit, got %#v", f.api.stored)
	}
	if status := s.Status(); status.Record.ID != "c-1" || status.PendingCount != 0 {
		t.Fatalf("unexpected status %#v", status)
	}
}

func TestSessionSaveQueuesBehindStillFailingDraftCreate(t *testing.T) {
	f := newSessionFixture(t, false, domain.NewComplaint())
	s := f.session
	ctx := context.Background()

	if err := s.SetField(domain.FieldRemarks, "offline"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	f.api.mu.Lock()
	f.api.failAll = ErrUnavailable
	f.api.mu.Unlock()
	f.conn.Set(true)

	if err := s.SetField(domain.FieldRemarks, "online"); err != nil {
		t.Fatalf("SetField() error = %v", err)
	}
	outcome, err := s.Save(ctx)
	if err != nil || outcome != SaveQueued {
		t.Fatalf("expected save queued behind the failing create, got %q err=%v", outcome, err)
	}
	for _, call := range f.api.Calls() {
		if call.Record.Remarks == "online" {
			t.Fatalf("expected no direct submit while the draft create is pending, got %#v", f.api.Calls())
		}
	}
	if f.queue.PendingCount() != 2 {
		t.Fatalf("expected two queued entries, got %d", f.queue.PendingCount())
	}

	f.api.mu.Lock()
	f.api.failAll = nil
	f.api.mu.Unlock()
	if _, err := s.Replay(ctx); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(f.api.stored) != 1 || f.api.stored["c-1"].Remarks != "online" {
		t.Fatalf("expected one complaint with the latest edit, got %#v", f.api.stored)
	}
	if s.Record().ID != "c-1" {
		t.Fatalf("expected session to adopt c-1, got %q", s.Record().ID)
	}
}

func TestSessionStartResumesLeftoverQueue(t *testing.T) {
	api := newFakeAPI()
	store := newMemPendingStore()
	ctx := context.Background()
	key := domain.UserQueueKey("u1")
	change, err := domain.NewPendingChange(key, "", savedComplaint("c-8", "from last run"), newFakeClock().Now())
	if err != nil {
		t.Fatalf("NewPendingChange() error = %v", err)
	}
	if _, err := store.AppendPendingChange(ctx, change); err != nil {
		t.Fatalf("AppendPendingChange() error = %v", err)
	}
	queue, err := NewOfflineQueue(ctx, store, api, newFakeConnectivity(true), OfflineQueueConfig{QueueKey: key})
	if err != nil {
		t.Fatalf("NewOfflineQueue() error = %v", err)
	}
	s := NewSession(ctx, api, queue, domain.NewComplaint(), SessionConfig{DraftID: "draft-1", TickEvery: time.Hour})
	t.Cleanup(func() {
		s.Close()
		queue.Close()
	})

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for queue.PendingCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected leftover entry replayed after Start, pending=%d", queue.PendingCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	calls := api.Calls()
	if len(calls) != 1 || calls[0].Method != "PUT" || calls[0].Record.Remarks != "from last run" {
		t.Fatalf("unexpected calls %#v", calls)
	}
}

func TestSessionConcurrentSetFieldKeepsEveryEdit(t *testing.T) {
	f := newSessionFixture(t, true, savedComplaint("c-6", ""))
	s := f.session
	edits := map[string]string{
		domain.FieldCustomerName:  "Meera",
		domain.FieldAddress:       "12 Lake Road",
		domain.FieldBrand:         "Voltas",
		domain.FieldProductName:   "Split AC",
		domain.FieldModelNumber:   "VX-180",
		domain.FieldSerialNumber:  "SN-4471",
		domain.FieldRemarks:       "call before visit",
		domain.FieldCustomerEmail: "meera@example.com",
	}

	var wg sync.WaitGroup
	for field, value := range edits {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.SetField(field, value); err != nil {
				t.Errorf("SetField(%s) error = %v", field, err)
			}
		}()
	}
	wg.Wait()

	record := s.Record()
	for field, want := range edits {
		if got, _ := record.FieldValue(field); got != want {
			t.Fatalf("expected %s = %q after concurrent edits, got %q", field, want, got)
		}
	}
	if got := len(s.History().Past); got != len(edits) {
		t.Fatalf("expected %d history entries, got %d", len(edits), got)
	}
}
