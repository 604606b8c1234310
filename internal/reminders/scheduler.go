package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/salonchat/supportdesk/internal/appointments"
	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/sessions"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// Catalog supplies venue settings and product names for reminder copy.
type Catalog interface {
	GetSettings(ctx context.Context) (*catalog.AppSettings, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// Scheduler keeps the reminder table in step with bookings and packages.
type Scheduler struct {
	store   *Store
	catalog Catalog
	loc     *time.Location
	logger  *logging.Logger
	now     func() time.Time
}

// NewScheduler creates a reminder scheduler. loc is the venue fallback
// timezone used when settings carry none.
func NewScheduler(store *Store, cat Catalog, loc *time.Location, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("reminders: store required")
	}
	if cat == nil {
		panic("reminders: catalog required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{store: store, catalog: cat, loc: loc, logger: logger, now: time.Now}
}

// ScheduleAppointment stores the reminder for a new or moved appointment.
func (s *Scheduler) ScheduleAppointment(ctx context.Context, appt *appointments.Appointment, settings *catalog.AppSettings) error {
	loc := settings.Location(s.loc)
	r, err := ComputeAppointmentReminder(appt, settings, loc)
	if err != nil || r == nil {
		return err
	}
	if !s.clamp(r) {
		s.logger.Debug("reminders: appointment already started, skipping", "appointment_id", appt.ID)
		return nil
	}
	var productName string
	if p, err := s.catalog.GetProduct(ctx, appt.ProductID); err == nil {
		productName = p.Name
	}
	r.Subject, r.Body = appointmentMessage(r, settings.VenueName, productName, loc)
	if err := s.store.Create(ctx, r); err != nil {
		return fmt.Errorf("reminders: schedule appointment: %w", err)
	}
	s.logger.Info("reminders: appointment reminder scheduled",
		"id", r.ID,
		"appointment_id", appt.ID,
		"scheduled_for", r.ScheduledFor.Format(time.RFC3339),
	)
	return nil
}

// CancelAppointment drops the pending reminder of a cancelled or moved appointment.
func (s *Scheduler) CancelAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	n, err := s.store.DeletePendingForAppointment(ctx, appointmentID)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("reminders: appointment reminder cleared", "appointment_id", appointmentID, "count", n)
	}
	return nil
}

// ScheduleExpiry replaces the pending expiry reminder of a package.
func (s *Scheduler) ScheduleExpiry(ctx context.Context, cp *sessions.CustomerProduct) error {
	if _, err := s.store.DeletePendingForPackage(ctx, cp.ID); err != nil {
		return err
	}
	if !cp.IsActive {
		return nil
	}
	settings, err := s.catalog.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("reminders: schedule expiry: %w", err)
	}
	loc := settings.Location(s.loc)
	r, err := ComputeExpiryReminder(cp, settings, loc)
	if err != nil || r == nil {
		return err
	}
	if !s.clamp(r) {
		return nil
	}
	var productName string
	if p, err := s.catalog.GetProduct(ctx, cp.ProductID); err == nil {
		productName = p.Name
	}
	r.Subject, r.Body = expiryMessage(r, settings.VenueName, productName, cp.RemainingSessions, loc)
	if err := s.store.Create(ctx, r); err != nil {
		return fmt.Errorf("reminders: schedule expiry: %w", err)
	}
	s.logger.Info("reminders: expiry reminder scheduled",
		"id", r.ID,
		"customer_product_id", cp.ID,
		"scheduled_for", r.ScheduledFor.Format(time.RFC3339),
	)
	return nil
}

// clamp pulls a fire time that has already passed forward to now, and
// reports false when the event itself is already in the past.
func (s *Scheduler) clamp(r *Reminder) bool {
	now := s.now().UTC()
	if !r.DueAt.After(now) {
		return false
	}
	if r.ScheduledFor.Before(now) {
		r.ScheduledFor = now
	}
	return true
}

var (
	_ appointments.ReminderPlanner = (*Scheduler)(nil)
	_ sessions.ExpiryScheduler     = (*Scheduler)(nil)
)
