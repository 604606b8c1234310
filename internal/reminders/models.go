// Package reminders computes when customers should be reminded about an
// upcoming appointment or an expiring package, stores the schedule, and
// dispatches due reminders.
package reminders

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("reminders: not found")
	ErrNotPending = errors.New("reminders: reminder is no longer pending")
)

// Kind says what a reminder is about.
type Kind string

const (
	KindAppointment   Kind = "appointment"
	KindProductExpiry Kind = "product_expiry"
)

// Status tracks dispatch. It only ever moves forward.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// CanTransition reports whether a reminder may move from one status to
// another. Sent and failed are terminal.
func CanTransition(from, to Status) bool {
	return from == StatusPending && (to == StatusSent || to == StatusFailed)
}

// Reminder is one scheduled notification.
type Reminder struct {
	ID                uuid.UUID  `json:"id"`
	Kind              Kind       `json:"kind"`
	AppointmentID     *uuid.UUID `json:"appointmentId,omitempty"`
	CustomerProductID *uuid.UUID `json:"customerProductId,omitempty"`
	CustomerID        string     `json:"customerId"`
	RecipientName     string     `json:"recipientName,omitempty"`
	RecipientEmail    string     `json:"recipientEmail,omitempty"`
	Subject           string     `json:"subject"`
	Body              string     `json:"body"`
	// DueAt is the event being reminded about: appointment start or package expiry.
	DueAt        time.Time  `json:"dueAt"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"lastError,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Stats counts reminders by status for the staff dashboard.
type Stats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}
