package domain

import (
	"slices"
	"strings"
	"time"
)

type ComplaintStatus string

const (
	StatusOpen         ComplaintStatus = "open"
	StatusAssigned     ComplaintStatus = "assigned"
	StatusInProgress   ComplaintStatus = "in-progress"
	StatusPendingParts ComplaintStatus = "pending-parts"
	StatusClosed       ComplaintStatus = "closed"
	StatusCancelled    ComplaintStatus = "cancelled"
)

var validStatuses = []ComplaintStatus{
	StatusOpen,
	StatusAssigned,
	StatusInProgress,
	StatusPendingParts,
	StatusClosed,
	StatusCancelled,
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

type WarrantyStatus string

const (
	WarrantyIn       WarrantyStatus = "in-warranty"
	WarrantyOut      WarrantyStatus = "out-of-warranty"
	WarrantyExtended WarrantyStatus = "extended"
)

var validWarranties = []WarrantyStatus{WarrantyIn, WarrantyOut, WarrantyExtended}

// ValidStatuses returns the status codes accepted by the complaint API.
func ValidStatuses() []ComplaintStatus {
	return slices.Clone(validStatuses)
}

// ValidPriorities returns the accepted priority codes.
func ValidPriorities() []Priority {
	return slices.Clone(validPriorities)
}

// ValidWarrantyStatuses returns the accepted warranty codes.
func ValidWarrantyStatuses() []WarrantyStatus {
	return slices.Clone(validWarranties)
}

type FileKind string

const (
	FileKindProductPhoto FileKind = "product-photo"
	FileKindInvoice      FileKind = "invoice"
	FileKindWarrantyCard FileKind = "warranty-card"
	FileKindOther        FileKind = "other"
)

// FileRef points at a document already uploaded to the CRM file store.
type FileRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	URL      string   `json:"url,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
	Kind     FileKind `json:"kind,omitempty"`
}

// Complaint is the in-memory record edited by one session.
type Complaint struct {
	ID                 string          `json:"id,omitempty"`
	ComplaintNumber    string          `json:"complaint_number,omitempty"`
	CustomerName       string          `json:"customer_name"`
	CustomerPhone      string          `json:"customer_phone"`
	CustomerEmail      string          `json:"customer_email,omitempty"`
	Address            string          `json:"address,omitempty"`
	Pincode            string          `json:"pincode,omitempty"`
	Brand              string          `json:"brand,omitempty"`
	ProductName        string          `json:"product_name,omitempty"`
	ModelNumber        string          `json:"model_number,omitempty"`
	SerialNumber       string          `json:"serial_number,omitempty"`
	ProblemDescription string          `json:"problem_description,omitempty"`
	Status             ComplaintStatus `json:"status"`
	Priority           Priority        `json:"priority,omitempty"`
	TechnicianID       string          `json:"technician_id,omitempty"`
	WarrantyStatus     WarrantyStatus  `json:"warranty_status,omitempty"`
	EstimatedCost      float64         `json:"estimated_cost,omitempty"`
	VisitDate          *time.Time      `json:"visit_date,omitempty"`
	Remarks            string          `json:"remarks,omitempty"`
	Files              []FileRef       `json:"files,omitempty"`
}

// NewComplaint returns a blank record in the open state.
func NewComplaint() Complaint {
	return Complaint{
		Status:   StatusOpen,
		Priority: PriorityMedium,
	}
}

// IsNew reports whether the server has not assigned an id yet.
func (c Complaint) IsNew() bool {
	return strings.TrimSpace(c.ID) == ""
}

// Clone returns a deep copy; snapshots and queue entries never share backing arrays with the live record.
func (c Complaint) Clone() Complaint {
	out := c
	if c.VisitDate != nil {
		ts := *c.VisitDate
		out.VisitDate = &ts
	}
	if c.Files != nil {
		out.Files = slices.Clone(c.Files)
	}
	return out
}

// Equal reports value equality across every field, including file references.
func (c Complaint) Equal(other Complaint) bool {
	if !equalVisitDate(c.VisitDate, other.VisitDate) {
		return false
	}
	if !slices.Equal(c.Files, other.Files) {
		return false
	}
	return c.ID == other.ID &&
		c.ComplaintNumber == other.ComplaintNumber &&
		c.CustomerName == other.CustomerName &&
		c.CustomerPhone == other.CustomerPhone &&
		c.CustomerEmail == other.CustomerEmail &&
		c.Address == other.Address &&
		c.Pincode == other.Pincode &&
		c.Brand == other.Brand &&
		c.ProductName == other.ProductName &&
		c.ModelNumber == other.ModelNumber &&
		c.SerialNumber == other.SerialNumber &&
		c.ProblemDescription == other.ProblemDescription &&
		c.Status == other.Status &&
		c.Priority == other.Priority &&
		c.TechnicianID == other.TechnicianID &&
		c.WarrantyStatus == other.WarrantyStatus &&
		c.EstimatedCost == other.EstimatedCost &&
		c.Remarks == other.Remarks
}

// SameContent compares every editable field, ignoring server-assigned identity.
func (c Complaint) SameContent(other Complaint) bool {
	other.ID = c.ID
	other.ComplaintNumber = c.ComplaintNumber
	return c.Equal(other)
}

// WithIdentity copies the server-assigned identity of from onto c when c has none.
func (c Complaint) WithIdentity(from Complaint) Complaint {
	if !c.IsNew() || from.IsNew() {
		return c
	}
	c.ID = from.ID
	c.ComplaintNumber = from.ComplaintNumber
	return c
}

// Validate checks the enumerated codes only; the API owns every other rule.
func (c Complaint) Validate() error {
	if c.Status != "" && !slices.Contains(validStatuses, c.Status) {
		return ErrInvalidStatus
	}
	if c.Priority != "" && !slices.Contains(validPriorities, c.Priority) {
		return ErrInvalidPriority
	}
	if c.WarrantyStatus != "" && !slices.Contains(validWarranties, c.WarrantyStatus) {
		return ErrInvalidWarranty
	}
	if c.EstimatedCost < 0 {
		return ErrInvalidCost
	}
	return nil
}

func equalVisitDate(a, b *time.Time) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return a.Equal(*b)
	}
}

func normalizeVisitDate(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	out := ts.UTC().Truncate(time.Second)
	return &out
}
