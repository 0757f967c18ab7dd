package app

import (
	"context"
	"errors"
	"testing"

	"github.com/taskerco/complaintdesk/internal/domain"
)

func TestFormStoreSetFieldMergesWithoutHistory(t *testing.T) {
	form := NewFormStore(newFakeAPI(), domain.NewComplaint(), nil)
	patch, err := domain.PatchFromField(domain.FieldCustomerName, "Meera")
	if err != nil {
		t.Fatalf("PatchFromField() error = %v", err)
	}
	form.SetField(patch)
	got := form.Data()
	if got.CustomerName != "Meera" || got.Status != domain.StatusOpen {
		t.Fatalf("unexpected record %#v", got)
	}
}

func TestFormStoreSubmitCreatesThenUpdates(t *testing.T) {
	api := newFakeAPI()
	initial := domain.NewComplaint()
	initial.CustomerName = "Meera"
	form := NewFormStore(api, initial, nil)

	var succeeded domain.Complaint
	saved, err := form.Submit(context.Background(), SubmitOptions{
		OnSuccess: func(c domain.Complaint) { succeeded = c },
		OnError:   func(err error) { t.Fatalf("unexpected OnError(%v)", err) },
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if saved.ID != "c-1" || succeeded.ID != "c-1" {
		t.Fatalf("expected created id c-1, got saved=%q callback=%q", saved.ID, succeeded.ID)
	}
	if got := form.Data(); got.ID != "c-1" || got.ComplaintNumber != "TC-0001" {
		t.Fatalf("expected id written back into record, got %#v", got)
	}
	if form.Processing() {
		t.Fatal("expected processing cleared after submit")
	}

	if _, err := form.Submit(context.Background(), SubmitOptions{}); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	calls := api.Calls()
	if len(calls) != 2 || calls[0].Method != "POST" || calls[1].Method != "PUT" {
		t.Fatalf("expected POST then PUT, got %#v", calls)
	}
	if calls[1].Record.ID != "c-1" {
		t.Fatalf("expected PUT for c-1, got %q", calls[1].Record.ID)
	}
}

func TestFormStoreSubmitValidationErrors(t *testing.T) {
	api := newFakeAPI()
	api.failCall(1, &ValidationError{
		Message: "The given data was invalid.",
		Fields:  domain.FieldErrors{"customer_phone": "The customer phone field is required."},
	})
	form := NewFormStore(api, domain.NewComplaint(), nil)

	var reported error
	_, err := form.Submit(context.Background(), SubmitOptions{
		OnError: func(err error) { reported = err },
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := AsValidationError(err); !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if reported == nil {
		t.Fatal("expected OnError to be called")
	}
	if got := form.Errors()["customer_phone"]; got != "The customer phone field is required." {
		t.Fatalf("unexpected field error %q", got)
	}
	if form.Processing() {
		t.Fatal("expected processing cleared after failure")
	}

	form.ClearFieldError("customer_phone")
	if len(form.Errors()) != 0 {
		t.Fatalf("expected cleared errors, got %#v", form.Errors())
	}
}

func TestFormStoreSubmitTransientErrorKeepsRecord(t *testing.T) {
	api := newFakeAPI()
	api.failCall(1, ErrUnavailable)
	initial := domain.NewComplaint()
	initial.Remarks = "keep me"
	form := NewFormStore(api, initial, nil)

	var reported error
	_, err := form.Submit(context.Background(), SubmitOptions{OnError: func(err error) { reported = err }})
	if !errors.Is(err, ErrUnavailable) || !errors.Is(reported, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable returned and reported, got %v / %v", err, reported)
	}
	if form.Data().Remarks != "keep me" {
		t.Fatal("expected in-memory edits retained after failure")
	}
}

func TestFormStoreSubmitSanitizesPayload(t *testing.T) {
	api := newFakeAPI()
	initial := domain.NewComplaint()
	initial.Remarks = "<i>urgent</i> visit"
	form := NewFormStore(api, initial, nil)
	if _, err := form.Submit(context.Background(), SubmitOptions{}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if got := api.Calls()[0].Record.Remarks; got != "urgent visit" {
		t.Fatalf("expected sanitized remarks, got %q", got)
	}
}

func TestFormStoreRejectsConcurrentSubmit(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	api.entered = make(chan struct{}, 1)
	form := NewFormStore(api, domain.NewComplaint(), nil)

	done := make(chan error, 1)
	go func() {
		_, err := form.Submit(context.Background(), SubmitOptions{})
		done <- err
	}()
	<-api.entered

	if !form.Processing() {
		t.Fatal("expected processing during submit")
	}
	var reported error
	_, err := form.Submit(context.Background(), SubmitOptions{OnError: func(err error) { reported = err }})
	if !errors.Is(err, ErrSubmitInFlight) || !errors.Is(reported, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v / %v", err, reported)
	}

	close(api.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
}

func TestFormStoreDropsStaleResponse(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	api.entered = make(chan struct{}, 1)
	form := NewFormStore(api, domain.NewComplaint(), nil)

	done := make(chan error, 1)
	called := make(chan struct{}, 2)
	go func() {
		_, err := form.Submit(context.Background(), SubmitOptions{
			OnSuccess: func(domain.Complaint) { called <- struct{}{} },
			OnError:   func(error) { called <- struct{}{} },
		})
		done <- err
	}()
	<-api.entered

	replacement := domain.NewComplaint()
	replacement.CustomerName = "someone else"
	form.Reset(replacement)
	close(api.block)

	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected ErrStaleResponse, got %v", err)
	}
	if got := form.Data(); !got.IsNew() || got.CustomerName != "someone else" {
		t.Fatalf("stale response was applied: %#v", got)
	}
	select {
	case <-called:
		t.Fatal("callbacks must not fire for a stale response")
	default:
	}
}
