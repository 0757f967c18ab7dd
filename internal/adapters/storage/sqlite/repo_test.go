package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
)

func TestRepository_PendingChangeLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := Open(filepath.Join(t.TempDir(), "nested", "complaintdesk.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	visit := time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC)
	record := domain.NewComplaint()
	record.CustomerName = "Nisha"
	record.VisitDate = &visit
	record.Files = []domain.FileRef{{ID: "f1", Name: "bill.jpg", Kind: domain.FileKindInvoice}}

	key := domain.UserQueueKey("u1")
	var ids []int64
	for i, remarks := range []string{"first", "second"} {
		record.Remarks = remarks
		change, err := domain.NewPendingChange(key, "d1", record, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("NewPendingChange() error = %v", err)
		}
		stored, err := repo.AppendPendingChange(ctx, change)
		if err != nil {
			t.Fatalf("AppendPendingChange() error = %v", err)
		}
		if stored.ID == 0 {
			t.Fatal("expected sequence id to be assigned")
		}
		ids = append(ids, stored.ID)
	}
	other, err := domain.NewPendingChange(domain.UserQueueKey("u2"), "", domain.NewComplaint(), now)
	if err != nil {
		t.Fatalf("NewPendingChange() error = %v", err)
	}
	if _, err := repo.AppendPendingChange(ctx, other); err != nil {
		t.Fatalf("AppendPendingChange(other) error = %v", err)
	}

	changes, err := repo.ListPendingChanges(ctx, key)
	if err != nil {
		t.Fatalf("ListPendingChanges() error = %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes for %s, got %d", key, len(changes))
	}
	if changes[0].Record.Remarks != "first" || changes[1].Record.Remarks != "second" {
		t.Fatalf("expected insertion order, got %q then %q", changes[0].Record.Remarks, changes[1].Record.Remarks)
	}
	if !changes[0].QueuedAt.Equal(now) || changes[0].DraftID != "d1" {
		t.Fatalf("unexpected first change %#v", changes[0])
	}
	if changes[0].Record.VisitDate == nil || !changes[0].Record.VisitDate.Equal(visit) || len(changes[0].Record.Files) != 1 {
		t.Fatalf("record did not round-trip: %#v", changes[0].Record)
	}

	count, err := repo.CountPendingChanges(ctx, key)
	if err != nil {
		t.Fatalf("CountPendingChanges() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	changes[1].Record.ID = "c-10"
	if err := repo.UpdatePendingChange(ctx, changes[1]); err != nil {
		t.Fatalf("UpdatePendingChange() error = %v", err)
	}
	if err := repo.DeletePendingChange(ctx, ids[0]); err != nil {
		t.Fatalf("DeletePendingChange() error = %v", err)
	}
	changes, err = repo.ListPendingChanges(ctx, key)
	if err != nil {
		t.Fatalf("ListPendingChanges() error = %v", err)
	}
	if len(changes) != 1 || changes[0].Record.ID != "c-10" {
		t.Fatalf("unexpected remaining changes %#v", changes)
	}

	keys, err := repo.ListQueueKeys(ctx)
	if err != nil {
		t.Fatalf("ListQueueKeys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "user:u1" || keys[1] != "user:u2" {
		t.Fatalf("unexpected queue keys %#v", keys)
	}
}

func TestRepository_MissingRowsReturnNotFound(t *testing.T) {
	ctx := context.Background()
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	if err := repo.DeletePendingChange(ctx, 404); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.UpdatePendingChange(ctx, domain.PendingChange{ID: 404}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "complaintdesk.db")
	repo, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	change, err := domain.NewPendingChange(domain.DraftQueueKey("d9"), "d9", domain.NewComplaint(), time.Now())
	if err != nil {
		t.Fatalf("NewPendingChange() error = %v", err)
	}
	if _, err := repo.AppendPendingChange(ctx, change); err != nil {
		t.Fatalf("AppendPendingChange() error = %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() reopen error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	count, err := reopened.CountPendingChanges(ctx, domain.DraftQueueKey("d9"))
	if err != nil {
		t.Fatalf("CountPendingChanges() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("expected pending change to survive reopen, got %d", count)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
