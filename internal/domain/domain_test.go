package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewComplaintDefaults(t *testing.T) {
	c := NewComplaint()
	if c.Status != StatusOpen {
		t.Fatalf("unexpected status %q", c.Status)
	}
	if c.Priority != PriorityMedium {
		t.Fatalf("unexpected priority %q", c.Priority)
	}
	if !c.IsNew() {
		t.Fatal("expected blank complaint to be new")
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestComplaintCloneIsDeep(t *testing.T) {
	visit := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	c := NewComplaint()
	c.VisitDate = &visit
	c.Files = []FileRef{{ID: "f1", Name: "invoice.pdf", Kind: FileKindInvoice}}

	clone := c.Clone()
	clone.Files[0].Name = "changed.pdf"
	*clone.VisitDate = visit.Add(24 * time.Hour)

	if c.Files[0].Name != "invoice.pdf" {
		t.Fatalf("clone shares files slice, got %q", c.Files[0].Name)
	}
	if !c.VisitDate.Equal(visit) {
		t.Fatalf("clone shares visit date, got %v", c.VisitDate)
	}
	if c.Equal(clone) {
		t.Fatal("expected mutated clone to differ")
	}
}

func TestComplaintEqual(t *testing.T) {
	a := NewComplaint()
	a.CustomerName = "Asha"
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("expected clones to be equal")
	}
	b.Remarks = "call before visit"
	if a.Equal(b) {
		t.Fatal("expected remarks change to break equality")
	}
}

func TestComplaintValidate(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Complaint)
		want error
	}{
		{name: "status", edit: func(c *Complaint) { c.Status = "lost" }, want: ErrInvalidStatus},
		{name: "priority", edit: func(c *Complaint) { c.Priority = "p0" }, want: ErrInvalidPriority},
		{name: "warranty", edit: func(c *Complaint) { c.WarrantyStatus = "void" }, want: ErrInvalidWarranty},
		{name: "cost", edit: func(c *Complaint) { c.EstimatedCost = -1 }, want: ErrInvalidCost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewComplaint()
			tc.edit(&c)
			if err := c.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPatchFromFieldAndApply(t *testing.T) {
	base := NewComplaint()
	base.CustomerName = "Asha"

	patch, err := PatchFromField(FieldStatus, " In-Progress ")
	if err != nil {
		t.Fatalf("PatchFromField() error = %v", err)
	}
	next := patch.Apply(base)
	if next.Status != StatusInProgress {
		t.Fatalf("unexpected status %q", next.Status)
	}
	if next.CustomerName != "Asha" {
		t.Fatalf("expected untouched fields to survive, got %q", next.CustomerName)
	}
	if base.Status != StatusOpen {
		t.Fatalf("Apply() mutated its input, status %q", base.Status)
	}

	patch, err = PatchFromField(FieldEstimatedCost, "1250.50")
	if err != nil {
		t.Fatalf("PatchFromField(cost) error = %v", err)
	}
	if got := patch.Apply(base).EstimatedCost; got != 1250.50 {
		t.Fatalf("unexpected cost %v", got)
	}

	patch, err = PatchFromField(FieldVisitDate, "2026-05-01")
	if err != nil {
		t.Fatalf("PatchFromField(visit_date) error = %v", err)
	}
	withVisit := patch.Apply(base)
	if got, _ := withVisit.FieldValue(FieldVisitDate); got != "2026-05-01" {
		t.Fatalf("unexpected visit date %q", got)
	}
	patch, err = PatchFromField(FieldVisitDate, "")
	if err != nil {
		t.Fatalf("PatchFromField(clear visit_date) error = %v", err)
	}
	if patch.Apply(withVisit).VisitDate != nil {
		t.Fatal("expected empty visit date to clear the field")
	}
}

func TestPatchFromFieldRejectsBadInput(t *testing.T) {
	if _, err := PatchFromField("colour", "red"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if _, err := PatchFromField(FieldPriority, "whenever"); !errors.Is(err, ErrInvalidFieldValue) || !errors.Is(err, ErrInvalidPriority) {
		t.Fatalf("expected invalid priority value, got %v", err)
	}
	if _, err := PatchFromField(FieldEstimatedCost, "-4"); !errors.Is(err, ErrInvalidFieldValue) {
		t.Fatalf("expected invalid cost, got %v", err)
	}
	if _, err := PatchFromField(FieldVisitDate, "05/01/2026"); !errors.Is(err, ErrInvalidFieldValue) {
		t.Fatalf("expected invalid date, got %v", err)
	}
}

func TestEditableFieldsRoundTripThroughFieldValue(t *testing.T) {
	c := NewComplaint()
	for _, name := range EditableFields() {
		if !IsEditableField(name) {
			t.Fatalf("IsEditableField(%q) = false", name)
		}
		if _, err := c.FieldValue(name); err != nil {
			t.Fatalf("FieldValue(%q) error = %v", name, err)
		}
	}
	if IsEditableField("id") {
		t.Fatal("id must not be editable")
	}
}

func TestEmptyPatch(t *testing.T) {
	if !(ComplaintPatch{}).IsEmpty() {
		t.Fatal("expected zero patch to be empty")
	}
	patch, err := PatchFromField(FieldRemarks, "")
	if err != nil {
		t.Fatalf("PatchFromField() error = %v", err)
	}
	if patch.IsEmpty() {
		t.Fatal("expected explicit empty string to count as a set key")
	}
}

func TestQueueKeys(t *testing.T) {
	for _, key := range []string{UserQueueKey("u1"), ComplaintQueueKey("c9"), DraftQueueKey("d2")} {
		if err := ValidateQueueKey(key); err != nil {
			t.Fatalf("ValidateQueueKey(%q) error = %v", key, err)
		}
	}
	for _, key := range []string{"", "user:", "tenant:7", "draft:  "} {
		if err := ValidateQueueKey(key); !errors.Is(err, ErrInvalidQueueKey) {
			t.Fatalf("ValidateQueueKey(%q) expected ErrInvalidQueueKey, got %v", key, err)
		}
	}
}

func TestNewPendingChangeCopiesRecord(t *testing.T) {
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	record := NewComplaint()
	record.Files = []FileRef{{ID: "f1"}}
	change, err := NewPendingChange(" user:u1 ", "d1", record, now)
	if err != nil {
		t.Fatalf("NewPendingChange() error = %v", err)
	}
	record.Files[0].ID = "mutated"
	if change.Record.Files[0].ID != "f1" {
		t.Fatal("expected queued record to be isolated from caller")
	}
	if change.QueueKey != "user:u1" || change.QueuedAt.Location() != time.UTC {
		t.Fatalf("unexpected pending change %#v", change)
	}
	if _, err := NewPendingChange("nope", "d1", record, now); !errors.Is(err, ErrInvalidQueueKey) {
		t.Fatalf("expected ErrInvalidQueueKey, got %v", err)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	record := NewComplaint()
	record.Files = []FileRef{{ID: "f1"}}
	snap := NewSnapshot(record, time.Now())
	record.Files[0].ID = "f2"
	if snap.Record.Files[0].ID != "f1" {
		t.Fatal("snapshot must not share backing arrays")
	}
}

func TestSanitized(t *testing.T) {
	c := NewComplaint()
	c.ProblemDescription = "<b>Fan</b> noise & <script>alert(1)</script>vibration"
	c.CustomerPhone = "98450 12345"
	got := c.Sanitized()
	if got.ProblemDescription != "Fan noise & vibration" {
		t.Fatalf("unexpected sanitized description %q", got.ProblemDescription)
	}
	if got.CustomerPhone != c.CustomerPhone {
		t.Fatalf("unexpected phone %q", got.CustomerPhone)
	}
	if SanitizeText("plain & simple") != "plain & simple" {
		t.Fatal("expected text without tags to pass through")
	}
}

func TestSanitizeTextKeepsStrayAngleBrackets(t *testing.T) {
	cases := map[string]string{
		"temp<high after reset":             "temp<high after reset",
		"works <3":                          "works <3",
		"a<b and <i>c</i>":                  "a<b and c",
		"x < y <b>bold</b> &lt; literal":    "x < y bold &lt; literal",
		"<script>alert(1)</script>hum<loud": "hum<loud",
		"<!-- note -->cold":                 "cold",
	}
	for in, want := range cases {
		if got := SanitizeText(in); got != want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFieldErrorsFields(t *testing.T) {
	errs := FieldErrors{"status": "bad", "customer_name": "required"}
	fields := errs.Fields()
	if len(fields) != 2 || fields[0] != "customer_name" || fields[1] != "status" {
		t.Fatalf("unexpected field order %#v", fields)
	}
	clone := errs.Clone()
	clone["status"] = "changed"
	if errs["status"] != "bad" {
		t.Fatal("Clone() must not share the map")
	}
}

func TestSameContentIgnoresIdentity(t *testing.T) {
	draft := NewComplaint()
	draft.CustomerName = "Ravi"
	saved := draft.Clone()
	saved.ID = "c-1"
	saved.ComplaintNumber = "TC-0001"
	if draft.Equal(saved) {
		t.Fatal("expected identity to matter for Equal")
	}
	if !draft.SameContent(saved) {
		t.Fatal("expected identical content to match")
	}
	stamped := draft.WithIdentity(saved)
	if stamped.ID != "c-1" || stamped.ComplaintNumber != "TC-0001" {
		t.Fatalf("unexpected identity %#v", stamped)
	}
	other := NewComplaint()
	other.ID = "c-2"
	if got := other.WithIdentity(saved); got.ID != "c-2" {
		t.Fatalf("WithIdentity() must not overwrite an existing id, got %q", got.ID)
	}
}
