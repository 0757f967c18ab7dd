package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// apiCall records one request made against fakeAPI.
type apiCall struct {
	Method string
	Record domain.Complaint
}

// fakeAPI is an in-memory complaint API with scripted failures.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	nextID  int
	stored  map[string]domain.Complaint
	failOn  map[int]error
	failAll error
	block   chan struct{}
	entered chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{stored: map[string]domain.Complaint{}, failOn: map[int]error{}}
}

// failCall makes the n-th call (1-based) fail with err.
func (f *fakeAPI) failCall(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn[n] = err
}

func (f *fakeAPI) record(method string, c domain.Complaint) error {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Record: c.Clone()})
	n := len(f.calls)
	err := f.failOn[n]
	if f.failAll != nil {
		err = f.failAll
	}
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeAPI) CreateComplaint(_ context.Context, c domain.Complaint) (domain.Complaint, error) {
	if err := f.record("POST", c); err != nil {
		return domain.Complaint{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = fmt.Sprintf("c-%d", f.nextID)
	c.ComplaintNumber = fmt.Sprintf("TC-%04d", f.nextID)
	f.stored[c.ID] = c.Clone()
	return c, nil
}

func (f *fakeAPI) UpdateComplaint(_ context.Context, c domain.Complaint) (domain.Complaint, error) {
	if err := f.record("PUT", c); err != nil {
		return domain.Complaint{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[c.ID] = c.Clone()
	return c, nil
}

func (f *fakeAPI) GetComplaint(_ context.Context, id string) (domain.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.stored[id]
	if !ok {
		return domain.Complaint{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// memPendingStore is an in-memory PendingStore.
type memPendingStore struct {
	mu      sync.Mutex
	nextID  int64
	changes []domain.PendingChange
	deleted []int64
}

func newMemPendingStore() *memPendingStore {
	return &memPendingStore{}
}

func (s *memPendingStore) AppendPendingChange(_ context.Context, change domain.PendingChange) (domain.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	change.ID = s.nextID
	s.changes = append(s.changes, change)
	return change, nil
}

func (s *memPendingStore) ListPendingChanges(_ context.Context, key string) ([]domain.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PendingChange, 0, len(s.changes))
	for _, change := range s.changes {
		if change.QueueKey == key {
			out = append(out, change)
		}
	}
	return out, nil
}

func (s *memPendingStore) UpdatePendingChange(_ context.Context, change domain.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.changes {
		if s.changes[i].ID == change.ID {
			s.changes[i] = change
			return nil
		}
	}
	return ErrNotFound
}

func (s *memPendingStore) DeletePendingChange(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.changes {
		if s.changes[i].ID == id {
			s.changes = slices.Delete(s.changes, i, i+1)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *memPendingStore) CountPendingChanges(ctx context.Context, key string) (int, error) {
	changes, err := s.ListPendingChanges(ctx, key)
	return len(changes), err
}

func (s *memPendingStore) Deleted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.deleted)
}

// fakeConnectivity is a settable connectivity source.
type fakeConnectivity struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

func newFakeConnectivity(online bool) *fakeConnectivity {
	return &fakeConnectivity{online: online, subs: map[int]func(bool){}}
}

func (c *fakeConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConnectivity) Subscribe(fn func(bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *fakeConnectivity) Set(online bool) {
	c.mu.Lock()
	c.online = online
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func (c *fakeConnectivity) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRecordStore is a RecordStore without API access.
type memRecordStore struct {
	record domain.Complaint
}

func (s *memRecordStore) Data() domain.Complaint {
	return s.record.Clone()
}

func (s *memRecordStore) SetData(c domain.Complaint) {
	s.record = c.Clone()
}

func withStatus(c domain.Complaint, status domain.ComplaintStatus) domain.Complaint {
	c = c.Clone()
	c.Status = status
	return c
}
