package reminders

import (
	"fmt"
	"time"

	"github.com/salonchat/supportdesk/internal/appointments"
	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/scheduling"
	"github.com/salonchat/supportdesk/internal/sessions"
)

// ComputeAppointmentReminder returns the reminder for appt, or nil when
// appointment reminders are disabled. The fire time is the configured
// reminder time of day, the configured number of days before the
// appointment date, read in loc.
func ComputeAppointmentReminder(appt *appointments.Appointment, settings *catalog.AppSettings, loc *time.Location) (*Reminder, error) {
	if settings == nil || !settings.AppointmentReminderEnabled {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	start, err := appt.StartsAt(loc)
	if err != nil {
		return nil, fmt.Errorf("reminders: appointment %s: %w", appt.ID, err)
	}
	at, err := fireTime(start, settings.AppointmentReminderDaysBefore, settings.AppointmentReminderTime, loc)
	if err != nil {
		return nil, fmt.Errorf("reminders: appointment reminder time: %w", err)
	}
	id := appt.ID
	return &Reminder{
		Kind:           KindAppointment,
		AppointmentID:  &id,
		CustomerID:     appt.CustomerID,
		RecipientName:  appt.CustomerName,
		RecipientEmail: appt.CustomerEmail,
		DueAt:          start.UTC(),
		ScheduledFor:   at.UTC(),
		Status:         StatusPending,
	}, nil
}

// ComputeExpiryReminder returns the reminder for a package's expiry, or nil
// when the package never expires or expiry reminders are disabled.
func ComputeExpiryReminder(cp *sessions.CustomerProduct, settings *catalog.AppSettings, loc *time.Location) (*Reminder, error) {
	if settings == nil || !settings.ExpiryReminderEnabled || cp.ExpiryDate == nil {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	expiry := cp.ExpiryDate.In(loc)
	at, err := fireTime(expiry, settings.ExpiryReminderDaysBefore, settings.ExpiryReminderTime, loc)
	if err != nil {
		return nil, fmt.Errorf("reminders: expiry reminder time: %w", err)
	}
	id := cp.ID
	return &Reminder{
		Kind:              KindProductExpiry,
		CustomerProductID: &id,
		CustomerID:        cp.CustomerID,
		DueAt:             cp.ExpiryDate.UTC(),
		ScheduledFor:      at.UTC(),
		Status:            StatusPending,
	}, nil
}

// fireTime moves ref back daysBefore calendar days and pins the clock to
// timeOfDay. An empty timeOfDay keeps ref's own clock. The result is never
// later than ref.
func fireTime(ref time.Time, daysBefore int, timeOfDay string, loc *time.Location) (time.Time, error) {
	if daysBefore < 0 {
		daysBefore = 0
	}
	local := ref.In(loc)
	day := local.AddDate(0, 0, -daysBefore)
	hours, minutes := local.Hour(), local.Minute()
	if timeOfDay != "" {
		c, err := scheduling.ParseTime(timeOfDay)
		if err != nil {
			return time.Time{}, err
		}
		hours, minutes = c.Hours, c.Minutes
	}
	at := time.Date(day.Year(), day.Month(), day.Day(), hours, minutes, 0, 0, loc)
	if at.After(ref) {
		at = ref
	}
	return at, nil
}
