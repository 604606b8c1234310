// Package appointments books slots against the resolved scheduling rules and
// manages the appointment lifecycle.
package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/internal/scheduling"
)

var (
	ErrNotFound           = errors.New("appointments: not found")
	ErrSlotUnavailable    = errors.New("appointments: slot unavailable")
	ErrDateOff            = errors.New("appointments: venue closed on date")
	ErrOutsideWindow      = errors.New("appointments: date outside booking window")
	ErrInvalidTransition  = errors.New("appointments: invalid status transition")
	ErrSessionAlreadyUsed = errors.New("appointments: session already used")
	ErrNoPackage          = errors.New("appointments: no package linked")
	ErrConflict           = errors.New("appointments: concurrent update")
	ErrInvalidInput       = errors.New("appointments: invalid input")
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked              Status = "booked"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusRescheduled         Status = "rescheduled"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPendingConfirmation: {StatusBooked, StatusCancelled, StatusRescheduled},
	StatusBooked:              {StatusCancelled, StatusCompleted, StatusRescheduled},
	StatusRescheduled:         {StatusCancelled, StatusCompleted, StatusRescheduled},
}

// CanTransition reports whether from may move to to. Cancelled and completed
// are terminal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Occupies reports whether the appointment holds staff capacity.
func (s Status) Occupies() bool {
	return s != StatusCancelled
}

// Appointment is one booked slot.
type Appointment struct {
	ID                uuid.UUID  `json:"id"`
	CustomerID        string     `json:"customerId"`
	CustomerName      string     `json:"customerName,omitempty"`
	CustomerPhone     string     `json:"customerPhone,omitempty"`
	CustomerEmail     string     `json:"customerEmail,omitempty"`
	ProductID         string     `json:"productId"`
	BranchID          *string    `json:"branchId,omitempty"`
	StaffID           *string    `json:"staffId,omitempty"`
	Date              string     `json:"date"`
	Time              string     `json:"time"`
	DurationMinutes   int        `json:"durationMinutes"`
	Status            Status     `json:"status"`
	CustomerProductID *uuid.UUID `json:"customerProductId,omitempty"`
	IsSessionUsed     bool       `json:"isSessionUsed"`
	SessionUsedAt     *time.Time `json:"sessionUsedAt,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	CancelReason      string     `json:"cancelReason,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// StartsAt is the slot start in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	day, err := scheduling.ParseDate(a.Date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := scheduling.ParseTime(a.Time)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hours, c.Minutes, 0, 0, loc), nil
}

// AsBookings converts appointments to slot generator input.
func AsBookings(appts []Appointment) []scheduling.Booking {
	out := make([]scheduling.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, scheduling.Booking{
			Time:            a.Time,
			DurationMinutes: a.DurationMinutes,
			Cancelled:       !a.Status.Occupies(),
		})
	}
	return out
}
