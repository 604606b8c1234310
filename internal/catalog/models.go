// Package catalog stores the venue documents that feed scheduling: the
// venue-wide settings, branches and bookable products.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/salonchat/supportdesk/internal/scheduling"
)

var (
	// ErrNotFound is returned when a branch or product id has no document.
	ErrNotFound = errors.New("catalog: not found")
	// ErrInvalid wraps validation failures on write.
	ErrInvalid = errors.New("catalog: invalid document")
)

// AppSettings holds venue-wide defaults. Its embedded scheduling rules are the
// global scope of rule resolution.
type AppSettings struct {
	VenueName   string `json:"venueName"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	scheduling.ScopeRules
	BreakTimes []scheduling.BreakWindow `json:"breakTimes"`

	// RequireBookingConfirmation holds widget bookings as pending until staff confirm.
	RequireBookingConfirmation bool `json:"requireBookingConfirmation"`

	AppointmentReminderEnabled    bool   `json:"appointmentReminderEnabled"`
	AppointmentReminderDaysBefore int    `json:"appointmentReminderDaysBefore"`
	AppointmentReminderTime       string `json:"appointmentReminderTime"`
	ExpiryReminderEnabled         bool   `json:"expiryReminderEnabled"`
	ExpiryReminderDaysBefore      int    `json:"expiryReminderDaysBefore"`
	ExpiryReminderTime            string `json:"expiryReminderTime"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// DefaultSettings is served until staff save settings for the first time.
func DefaultSettings() *AppSettings {
	return &AppSettings{
		VenueName:                     "Support Desk",
		BreakTimes:                    []scheduling.BreakWindow{},
		AppointmentReminderEnabled:    true,
		AppointmentReminderDaysBefore: 1,
		AppointmentReminderTime:       "09:00",
		ExpiryReminderEnabled:         true,
		ExpiryReminderDaysBefore:      7,
		ExpiryReminderTime:            "09:00",
	}
}

// Validate checks rule values and reminder times before a save.
func (s *AppSettings) Validate() error {
	if err := scheduling.ValidateScopeRules(s.ScopeRules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := scheduling.ValidateBreakWindows(s.BreakTimes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if s.AppointmentReminderDaysBefore < 0 || s.ExpiryReminderDaysBefore < 0 {
		return fmt.Errorf("%w: reminder days before must not be negative", ErrInvalid)
	}
	if s.AppointmentReminderEnabled {
		if _, err := scheduling.ParseTime(s.AppointmentReminderTime); err != nil {
			return fmt.Errorf("%w: appointmentReminderTime: %v", ErrInvalid, err)
		}
	}
	if s.ExpiryReminderEnabled {
		if _, err := scheduling.ParseTime(s.ExpiryReminderTime); err != nil {
			return fmt.Errorf("%w: expiryReminderTime: %v", ErrInvalid, err)
		}
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q", ErrInvalid, s.Timezone)
		}
	}
	return nil
}

// Location returns the venue timezone, falling back when unset or unknown.
func (s *AppSettings) Location(fallback *time.Location) *time.Location {
	if s != nil && s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Branch is one physical location. Nil BreakTimes inherit the venue's.
type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	IsActive bool   `json:"isActive"`

	scheduling.ScopeRules
	BreakTimes []scheduling.BreakWindow `json:"breakTimes"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks a branch before it is saved.
func (b *Branch) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: branch name required", ErrInvalid)
	}
	if err := scheduling.ValidateScopeRules(b.ScopeRules); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := scheduling.ValidateBreakWindows(b.BreakTimes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Product is a bookable service. Session-based products carry SessionCount;
// ExpiryDays bounds how long a purchased package stays usable.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceVND    int64  `json:"priceVnd"`
	IsActive    bool   `json:"isActive"`

	SessionCount    *int                   `json:"sessionCount,omitempty"`
	ExpiryDays      *int                   `json:"expiryDays,omitempty"`
	SchedulingRules *scheduling.ScopeRules `json:"schedulingRules,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsSessionBased reports whether bookings of this product draw on a package.
func (p *Product) IsSessionBased() bool {
	return p.SessionCount != nil && *p.SessionCount > 0
}

// Validate checks a product before it is saved.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name required", ErrInvalid)
	}
	if p.PriceVND < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalid)
	}
	if p.SessionCount != nil && *p.SessionCount < 0 {
		return fmt.Errorf("%w: sessionCount must not be negative", ErrInvalid)
	}
	if p.ExpiryDays != nil && *p.ExpiryDays < 0 {
		return fmt.Errorf("%w: expiryDays must not be negative", ErrInvalid)
	}
	if p.SchedulingRules != nil {
		if err := scheduling.ValidateScopeRules(*p.SchedulingRules); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// BreaksFor returns the break windows in force at a branch.
func BreaksFor(settings *AppSettings, branch *Branch) []scheduling.BreakWindow {
	if branch != nil && branch.BreakTimes != nil {
		return branch.BreakTimes
	}
	if settings == nil {
		return nil
	}
	return settings.BreakTimes
}
