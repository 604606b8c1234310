// Package sessions tracks purchased product packages and the sessions left
// on them.
package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/internal/catalog"
)

var (
	// ErrNoSessionsRemaining means the package is used up.
	ErrNoSessionsRemaining = errors.New("sessions: no sessions remaining")
	ErrExpired             = errors.New("sessions: package expired")
	ErrInactive            = errors.New("sessions: package inactive")
	ErrNotFound            = errors.New("sessions: customer product not found")
	ErrInvalidCount        = errors.New("sessions: session counts must not be negative")
	ErrInvalidAssignment   = errors.New("sessions: invalid assignment")
)

// CustomerProduct is a package of sessions a customer bought.
// RemainingSessions is derived; call Recompute after changing the counters.
type CustomerProduct struct {
	ID                uuid.UUID  `json:"id"`
	CustomerID        string     `json:"customerId"`
	ProductID         string     `json:"productId"`
	TotalSessions     int        `json:"totalSessions"`
	UsedSessions      int        `json:"usedSessions"`
	RemainingSessions int        `json:"remainingSessions"`
	AssignedDate      time.Time  `json:"assignedDate"`
	ExpiryDate        *time.Time `json:"expiryDate,omitempty"`
	IsActive          bool       `json:"isActive"`
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NewCustomerProduct assigns product to a customer as of assigned.
func NewCustomerProduct(customerID string, product *catalog.Product, assigned time.Time) CustomerProduct {
	cp := CustomerProduct{
		ID:           uuid.New(),
		CustomerID:   customerID,
		ProductID:    product.ID,
		AssignedDate: assigned,
		IsActive:     true,
	}
	if product.SessionCount != nil {
		cp.TotalSessions = *product.SessionCount
	}
	if product.ExpiryDays != nil {
		expiry := assigned.AddDate(0, 0, *product.ExpiryDays)
		cp.ExpiryDate = &expiry
	}
	Recompute(&cp)
	return cp
}

// Recompute restores remaining = max(0, total - used), clamping negatives.
func Recompute(cp *CustomerProduct) {
	if cp.TotalSessions < 0 {
		cp.TotalSessions = 0
	}
	if cp.UsedSessions < 0 {
		cp.UsedSessions = 0
	}
	cp.RemainingSessions = cp.TotalSessions - cp.UsedSessions
	if cp.RemainingSessions < 0 {
		cp.RemainingSessions = 0
	}
}

// ConsumeSession uses one session. On failure cp is left untouched.
// It is not idempotent; callers guard it with the appointment's
// session-used flag.
func ConsumeSession(cp *CustomerProduct) error {
	if cp.TotalSessions-cp.UsedSessions <= 0 {
		return ErrNoSessionsRemaining
	}
	cp.UsedSessions++
	Recompute(cp)
	return nil
}

// IsExpired reports whether asOf is past the package expiry.
func IsExpired(cp *CustomerProduct, asOf time.Time) bool {
	return cp.ExpiryDate != nil && asOf.After(*cp.ExpiryDate)
}

// CheckUsable returns why a booking cannot draw on cp, or nil.
func CheckUsable(cp *CustomerProduct, asOf time.Time) error {
	switch {
	case !cp.IsActive:
		return ErrInactive
	case IsExpired(cp, asOf):
		return ErrExpired
	case cp.TotalSessions-cp.UsedSessions <= 0:
		return ErrNoSessionsRemaining
	}
	return nil
}

// SetTotalSessions changes the package size.
func SetTotalSessions(cp *CustomerProduct, total int) error {
	if total < 0 {
		return fmt.Errorf("%w: total %d", ErrInvalidCount, total)
	}
	cp.TotalSessions = total
	Recompute(cp)
	return nil
}

// SetUsedSessions corrects the used counter.
func SetUsedSessions(cp *CustomerProduct, used int) error {
	if used < 0 {
		return fmt.Errorf("%w: used %d", ErrInvalidCount, used)
	}
	cp.UsedSessions = used
	Recompute(cp)
	return nil
}
