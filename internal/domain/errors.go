package domain

import "errors"

var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidWarranty   = errors.New("invalid warranty status")
	ErrInvalidCost       = errors.New("invalid estimated cost")
	ErrUnknownField      = errors.New("unknown field")
	ErrInvalidFieldValue = errors.New("invalid field value")
	ErrInvalidQueueKey   = errors.New("invalid queue key")
)
