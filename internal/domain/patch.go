package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Field names accepted by PatchFromField; they match the JSON keys of Complaint.
const (
	FieldCustomerName       = "customer_name"
	FieldCustomerPhone      = "customer_phone"
	FieldCustomerEmail      = "customer_email"
	FieldAddress            = "address"
	FieldPincode            = "pincode"
	FieldBrand              = "brand"
	FieldProductName        = "product_name"
	FieldModelNumber        = "model_number"
	FieldSerialNumber       = "serial_number"
	FieldProblemDescription = "problem_description"
	FieldStatus             = "status"
	FieldPriority           = "priority"
	FieldTechnicianID       = "technician_id"
	FieldWarrantyStatus     = "warranty_status"
	FieldEstimatedCost      = "estimated_cost"
	FieldVisitDate          = "visit_date"
	FieldRemarks            = "remarks"
)

var editableFields = []string{
	FieldCustomerName,
	FieldCustomerPhone,
	FieldCustomerEmail,
	FieldAddress,
	FieldPincode,
	FieldBrand,
	FieldProductName,
	FieldModelNumber,
	FieldSerialNumber,
	FieldProblemDescription,
	FieldStatus,
	FieldPriority,
	FieldTechnicianID,
	FieldWarrantyStatus,
	FieldEstimatedCost,
	FieldVisitDate,
	FieldRemarks,
}

// visitDateLayout is the date-only format the form uses for visit scheduling.
const visitDateLayout = "2006-01-02"

// EditableFields returns every field name a session may change, in form order.
func EditableFields() []string {
	return slices.Clone(editableFields)
}

// IsEditableField reports whether name is a known editable field.
func IsEditableField(name string) bool {
	return slices.Contains(editableFields, strings.TrimSpace(name))
}

// ComplaintPatch is a partial record: only non-nil fields are merged.
type ComplaintPatch struct {
	CustomerName       *string          `json:"customer_name,omitempty"`
	CustomerPhone      *string          `json:"customer_phone,omitempty"`
	CustomerEmail      *string          `json:"customer_email,omitempty"`
	Address            *string          `json:"address,omitempty"`
	Pincode            *string          `json:"pincode,omitempty"`
	Brand              *string          `json:"brand,omitempty"`
	ProductName        *string          `json:"product_name,omitempty"`
	ModelNumber        *string          `json:"model_number,omitempty"`
	SerialNumber       *string          `json:"serial_number,omitempty"`
	ProblemDescription *string          `json:"problem_description,omitempty"`
	Status             *ComplaintStatus `json:"status,omitempty"`
	Priority           *Priority        `json:"priority,omitempty"`
	TechnicianID       *string          `json:"technician_id,omitempty"`
	WarrantyStatus     *WarrantyStatus  `json:"warranty_status,omitempty"`
	EstimatedCost      *float64         `json:"estimated_cost,omitempty"`
	VisitDate          *time.Time       `json:"visit_date,omitempty"`
	ClearVisitDate     bool             `json:"clear_visit_date,omitempty"`
	Remarks            *string          `json:"remarks,omitempty"`
	Files              []FileRef        `json:"files,omitempty"`
}

// Apply merges the set keys of p into a copy of c.
func (p ComplaintPatch) Apply(c Complaint) Complaint {
	out := c.Clone()
	setString(&out.CustomerName, p.CustomerName)
	setString(&out.CustomerPhone, p.CustomerPhone)
	setString(&out.CustomerEmail, p.CustomerEmail)
	setString(&out.Address, p.Address)
	setString(&out.Pincode, p.Pincode)
	setString(&out.Brand, p.Brand)
	setString(&out.ProductName, p.ProductName)
	setString(&out.ModelNumber, p.ModelNumber)
	setString(&out.SerialNumber, p.SerialNumber)
	setString(&out.ProblemDescription, p.ProblemDescription)
	setString(&out.TechnicianID, p.TechnicianID)
	setString(&out.Remarks, p.Remarks)
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.WarrantyStatus != nil {
		out.WarrantyStatus = *p.WarrantyStatus
	}
	if p.EstimatedCost != nil {
		out.EstimatedCost = *p.EstimatedCost
	}
	switch {
	case p.ClearVisitDate:
		out.VisitDate = nil
	case p.VisitDate != nil:
		out.VisitDate = normalizeVisitDate(p.VisitDate)
	}
	if p.Files != nil {
		out.Files = slices.Clone(p.Files)
	}
	return out
}

// IsEmpty reports whether applying p would be a no-op by construction.
func (p ComplaintPatch) IsEmpty() bool {
	return p.CustomerName == nil && p.CustomerPhone == nil && p.CustomerEmail == nil &&
		p.Address == nil && p.Pincode == nil && p.Brand == nil && p.ProductName == nil &&
		p.ModelNumber == nil && p.SerialNumber == nil && p.ProblemDescription == nil &&
		p.Status == nil && p.Priority == nil && p.TechnicianID == nil &&
		p.WarrantyStatus == nil && p.EstimatedCost == nil && p.VisitDate == nil &&
		!p.ClearVisitDate && p.Remarks == nil && p.Files == nil
}

// PatchFromField parses one text value for the named field.
func PatchFromField(name, raw string) (ComplaintPatch, error) {
	name = strings.TrimSpace(name)
	value := strings.TrimSpace(raw)
	var p ComplaintPatch
	switch name {
	case FieldCustomerName:
		p.CustomerName = &value
	case FieldCustomerPhone:
		p.CustomerPhone = &value
	case FieldCustomerEmail:
		p.CustomerEmail = &value
	case FieldAddress:
		p.Address = &value
	case FieldPincode:
		p.Pincode = &value
	case FieldBrand:
		p.Brand = &value
	case FieldProductName:
		p.ProductName = &value
	case FieldModelNumber:
		p.ModelNumber = &value
	case FieldSerialNumber:
		p.SerialNumber = &value
	case FieldProblemDescription:
		// Multi-line text keeps inner whitespace.
		desc := strings.TrimRight(raw, " \t\r\n")
		p.ProblemDescription = &desc
	case FieldTechnicianID:
		p.TechnicianID = &value
	case FieldRemarks:
		p.Remarks = &value
	case FieldStatus:
		status := ComplaintStatus(strings.ToLower(value))
		if !slices.Contains(validStatuses, status) {
			return ComplaintPatch{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidFieldValue, name, raw, ErrInvalidStatus)
		}
		p.Status = &status
	case FieldPriority:
		priority := Priority(strings.ToLower(value))
		if !slices.Contains(validPriorities, priority) {
			return ComplaintPatch{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidFieldValue, name, raw, ErrInvalidPriority)
		}
		p.Priority = &priority
	case FieldWarrantyStatus:
		warranty := WarrantyStatus(strings.ToLower(value))
		if !slices.Contains(validWarranties, warranty) {
			return ComplaintPatch{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidFieldValue, name, raw, ErrInvalidWarranty)
		}
		p.WarrantyStatus = &warranty
	case FieldEstimatedCost:
		if value == "" {
			zero := 0.0
			p.EstimatedCost = &zero
			break
		}
		cost, err := strconv.ParseFloat(value, 64)
		if err != nil || cost < 0 {
			return ComplaintPatch{}, fmt.Errorf("%w: %s=%q: %w", ErrInvalidFieldValue, name, raw, ErrInvalidCost)
		}
		p.EstimatedCost = &cost
	case FieldVisitDate:
		if value == "" {
			p.ClearVisitDate = true
			break
		}
		ts, err := time.Parse(visitDateLayout, value)
		if err != nil {
			return ComplaintPatch{}, fmt.Errorf("%w: %s=%q: expected YYYY-MM-DD", ErrInvalidFieldValue, name, raw)
		}
		p.VisitDate = &ts
	default:
		return ComplaintPatch{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return p, nil
}

// FieldValue renders the current value of a field as text input would show it.
func (c Complaint) FieldValue(name string) (string, error) {
	switch strings.TrimSpace(name) {
	case FieldCustomerName:
		return c.CustomerName, nil
	case FieldCustomerPhone:
		return c.CustomerPhone, nil
	case FieldCustomerEmail:
		return c.CustomerEmail, nil
	case FieldAddress:
		return c.Address, nil
	case FieldPincode:
		return c.Pincode, nil
	case FieldBrand:
		return c.Brand, nil
	case FieldProductName:
		return c.ProductName, nil
	case FieldModelNumber:
		return c.ModelNumber, nil
	case FieldSerialNumber:
		return c.SerialNumber, nil
	case FieldProblemDescription:
		return c.ProblemDescription, nil
	case FieldStatus:
		return string(c.Status), nil
	case FieldPriority:
		return string(c.Priority), nil
	case FieldTechnicianID:
		return c.TechnicianID, nil
	case FieldWarrantyStatus:
		return string(c.WarrantyStatus), nil
	case FieldEstimatedCost:
		if c.EstimatedCost == 0 {
			return "", nil
		}
		return strconv.FormatFloat(c.EstimatedCost, 'f', 2, 64), nil
	case FieldVisitDate:
		if c.VisitDate == nil {
			return "", nil
		}
		return c.VisitDate.UTC().Format(visitDateLayout), nil
	case FieldRemarks:
		return c.Remarks, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
