package app

import (
	"context"
	"io"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/taskerco/complaintdesk/internal/domain"
)

// ComplaintAPI is the remote complaint resource used by submit and replay.
type ComplaintAPI interface {
	CreateComplaint(context.Context, domain.Complaint) (domain.Complaint, error)
	UpdateComplaint(context.Context, domain.Complaint) (domain.Complaint, error)
	GetComplaint(context.Context, string) (domain.Complaint, error)
}

// PendingStore persists queued changes. Append assigns the FIFO sequence id.
type PendingStore interface {
	AppendPendingChange(context.Context, domain.PendingChange) (domain.PendingChange, error)
	ListPendingChanges(context.Context, string) ([]domain.PendingChange, error)
	UpdatePendingChange(context.Context, domain.PendingChange) error
	DeletePendingChange(context.Context, int64) error
	CountPendingChanges(context.Context, string) (int, error)
}

// Connectivity reports network reachability and notifies on transitions.
type Connectivity interface {
	Online() bool
	Subscribe(func(online bool)) (unsubscribe func())
}

// Logger is the structured logger used by app components; *log.Logger satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

// IDGenerator returns unique identifiers for new drafts.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// discardLogger returns a logger that drops every event.
func discardLogger() Logger {
	return charmLog.New(io.Discard)
}

func loggerOrDiscard(logger Logger) Logger {
	if logger == nil {
		return discardLogger()
	}
	return logger
}

func clockOrNow(clock Clock) Clock {
	if clock == nil {
		return time.Now
	}
	return clock
}
