package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/salonchat/supportdesk/internal/catalog"
	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/internal/scheduling"
	"github.com/salonchat/supportdesk/internal/sessions"
	"github.com/salonchat/supportdesk/pkg/logging"
)

var appointmentsTracer = otel.Tracer("supportdesk.internal.appointments")

// Catalog supplies the three rule scopes.
type Catalog interface {
	GetSettings(ctx context.Context) (*catalog.AppSettings, error)
	GetBranch(ctx context.Context, id string) (*catalog.Branch, error)
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}

// PackageFinder locates a package a booking can draw sessions from.
type PackageFinder interface {
	FindUsable(ctx context.Context, customerID, productID string, asOf time.Time) (*sessions.CustomerProduct, error)
}

// ReminderPlanner keeps appointment reminders in step with bookings.
type ReminderPlanner interface {
	ScheduleAppointment(ctx context.Context, appt *Appointment, settings *catalog.AppSettings) error
	CancelAppointment(ctx context.Context, appointmentID uuid.UUID) error
}

// Options tunes booking policy.
type Options struct {
	Location           *time.Location
	MinBookingNotice   time.Duration
	AdvanceBookingDays int
}

// Service resolves availability and runs the booking lifecycle.
type Service struct {
	store     *Store
	catalog   Catalog
	packages  PackageFinder
	reminders ReminderPlanner
	notifier  notify.Notifier
	metrics   *metrics.SchedulingMetrics
	logger    *logging.Logger
	opts      Options
	now       func() time.Time
}

// NewService constructs the booking service. packages, reminders, notifier
// and m may be nil.
func NewService(store *Store, cat Catalog, packages PackageFinder, reminders ReminderPlanner, notifier notify.Notifier, m *metrics.SchedulingMetrics, opts Options, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if cat == nil {
		panic("appointments: catalog required")
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		store:     store,
		catalog:   cat,
		packages:  packages,
		reminders: reminders,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// AvailabilityQuery selects the scopes for a date. ProductID and BranchID
// are optional.
type AvailabilityQuery struct {
	Date      string
	ProductID string
	BranchID  string
}

// Availability is the bookable view of one date.
type Availability struct {
	Date    string                       `json:"date"`
	IsOff   bool                         `json:"isOff"`
	Slots   []string                     `json:"slots"`
	Context scheduling.SchedulingContext `json:"context"`
	Usage   []scheduling.SlotUsage       `json:"usage,omitempty"`
}

type resolved struct {
	settings *catalog.AppSettings
	branch   *catalog.Branch
	product  *catalog.Product
	sc       scheduling.SchedulingContext
	breaks   []scheduling.BreakWindow
	loc      *time.Location
}

// Availability resolves the rules for the query and lists the free slots,
// dropping slots already past or inside the minimum booking notice.
func (s *Service) Availability(ctx context.Context, q AvailabilityQuery) (*Availability, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("supportdesk.date", q.Date),
		attribute.String("supportdesk.product_id", q.ProductID),
		attribute.String("supportdesk.branch_id", q.BranchID),
	)
	start := time.Now()
	outcome := "ok"
	defer func() { s.metrics.ObserveAvailability(outcome, time.Since(start).Seconds()) }()

	r, err := s.resolve(ctx, q.Date, q.ProductID, q.BranchID)
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		return nil, err
	}
	out := &Availability{Date: r.sc.Date, IsOff: r.sc.IsOff, Context: r.sc, Slots: []string{}}
	if r.sc.IsOff {
		outcome = "off"
		return out, nil
	}
	if !s.withinWindow(r.sc.Date, r.loc) {
		outcome = "outside_window"
		return out, nil
	}

	existing, err := s.store.ListActiveForDate(ctx, r.sc.Date, q.ProductID, optional(q.BranchID))
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		return nil, err
	}
	slots, err := scheduling.GenerateAvailableSlots(r.sc, AsBookings(existing), r.breaks)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("appointments: availability: %w", err)
	}
	slots, err = scheduling.FilterPastSlots(slots, r.sc.Date, s.now(), r.loc, s.opts.MinBookingNotice)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("appointments: availability: %w", err)
	}
	usage, err := scheduling.DescribeSlots(r.sc, slots, AsBookings(existing))
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("appointments: availability: %w", err)
	}
	out.Slots = slots
	out.Usage = usage
	return out, nil
}

// BookInput is a booking request from the widget or staff.
type BookInput struct {
	CustomerID    string  `json:"customerId"`
	CustomerName  string  `json:"customerName"`
	CustomerPhone string  `json:"customerPhone"`
	CustomerEmail string  `json:"customerEmail"`
	ProductID     string  `json:"productId"`
	BranchID      string  `json:"branchId"`
	StaffID       *string `json:"staffId,omitempty"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	Notes         string  `json:"notes"`
	// ByStaff skips the confirmation hold that applies to widget bookings.
	ByStaff bool `json:"-"`
}

// Book reserves a slot. The slot is re-validated inside the insert
// transaction, so two customers racing for the last seat cannot both win.
func (s *Service) Book(ctx context.Context, in BookInput) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("supportdesk.customer_id", in.CustomerID),
		attribute.String("supportdesk.product_id", in.ProductID),
		attribute.String("supportdesk.date", in.Date),
		attribute.String("supportdesk.time", in.Time),
	)

	if strings.TrimSpace(in.CustomerID) == "" || strings.TrimSpace(in.ProductID) == "" {
		return nil, fmt.Errorf("%w: customerId and productId required", ErrInvalidInput)
	}
	if _, err := scheduling.ParseTime(in.Time); err != nil {
		return nil, err
	}
	r, err := s.resolve(ctx, in.Date, in.ProductID, in.BranchID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !r.product.IsActive {
		return nil, fmt.Errorf("%w: product %s is not bookable", ErrInvalidInput, r.product.ID)
	}
	if r.branch != nil && !r.branch.IsActive {
		return nil, fmt.Errorf("%w: branch %s is not bookable", ErrInvalidInput, r.branch.ID)
	}
	if err := s.checkBookable(r, in.Time); err != nil {
		return nil, err
	}

	appt := &Appointment{
		CustomerID:      in.CustomerID,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.CustomerEmail,
		ProductID:       in.ProductID,
		BranchID:        optional(in.BranchID),
		StaffID:         in.StaffID,
		Date:            r.sc.Date,
		Time:            in.Time,
		DurationMinutes: r.sc.ServiceDurationMinutes,
		Status:          StatusBooked,
		Notes:           in.Notes,
	}
	if !in.ByStaff && r.settings.RequireBookingConfirmation {
		appt.Status = StatusPendingConfirmation
	}
	if r.product.IsSessionBased() && s.packages != nil {
		cp, err := s.packages.FindUsable(ctx, in.CustomerID, in.ProductID, s.now())
		switch {
		case err == nil:
			appt.CustomerProductID = &cp.ID
		case errors.Is(err, sessions.ErrNotFound):
			s.logger.Info("booking session product without package", "customer_id", in.CustomerID, "product_id", in.ProductID)
		default:
			return nil, err
		}
	}

	if err := s.store.CreateChecked(ctx, appt, s.slotCheck(r, in.Time)); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("supportdesk.appointment_id", appt.ID.String()))
	s.metrics.ObserveAppointment(string(appt.Status))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"customer_id", appt.CustomerID,
		"product_id", appt.ProductID,
		"date", appt.Date,
		"time", appt.Time,
		"status", appt.Status,
	)

	s.scheduleReminder(ctx, appt, r.settings)
	s.publish(ctx, notify.KindAppointmentCreated, appt)
	return appt, nil
}

// Get loads an appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

// ListByDate returns the staff calendar for a date.
func (s *Service) ListByDate(ctx context.Context, date, branchID string) ([]Appointment, error) {
	day, err := scheduling.ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.store.ListByDate(ctx, day.Format(scheduling.DateLayout), optional(branchID))
}

// ListByCustomer returns a customer's appointment history.
func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]Appointment, error) {
	return s.store.ListByCustomer(ctx, customerID)
}

// Confirm accepts a booking held for confirmation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusBooked, "", notify.KindAppointmentConfirmed)
}

// Cancel releases the slot and drops the pending reminder.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusCancelled, reason, notify.KindAppointmentCancelled)
	if err != nil {
		return nil, err
	}
	if s.reminders != nil {
		if err := s.reminders.CancelAppointment(ctx, id); err != nil {
			s.logger.Warn("pending reminder not cleared", "appointment_id", id, "error", err)
		}
	}
	return appt, nil
}

// Complete closes the appointment and, when it is linked to a package whose
// session has not been taken yet, consumes one session.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.transition(ctx, id, StatusCompleted, "", notify.KindAppointmentCompleted)
	if err != nil {
		return nil, err
	}
	if appt.CustomerProductID == nil || appt.IsSessionUsed {
		return appt, nil
	}
	if _, err := s.MarkSessionUsed(ctx, id); err != nil {
		s.logger.Warn("session not consumed on completion", "appointment_id", id, "error", err)
		return appt, nil
	}
	return s.store.Get(ctx, id)
}

// Reschedule moves the appointment to a new free slot.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date, slot string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(attribute.String("supportdesk.appointment_id", id.String()))

	if _, err := scheduling.ParseTime(slot); err != nil {
		return nil, err
	}
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, StatusRescheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusRescheduled)
	}
	var branchID string
	if appt.BranchID != nil {
		branchID = *appt.BranchID
	}
	r, err := s.resolve(ctx, date, appt.ProductID, branchID)
	if err != nil {
		return nil, err
	}
	if err := s.checkBookable(r, slot); err != nil {
		return nil, err
	}
	if err := s.store.RescheduleChecked(ctx, appt, appt.Status, r.sc.Date, slot, r.sc.ServiceDurationMinutes, s.slotCheck(r, slot)); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveAppointment(string(StatusRescheduled))
	s.logger.Info("appointment rescheduled", "appointment_id", id, "date", appt.Date, "time", appt.Time)

	if s.reminders != nil {
		if err := s.reminders.CancelAppointment(ctx, id); err != nil {
			s.logger.Warn("pending reminder not cleared", "appointment_id", id, "error", err)
		}
	}
	s.scheduleReminder(ctx, appt, r.settings)
	s.publish(ctx, notify.KindAppointmentRescheduled, appt)
	return appt, nil
}

// SessionUsage is returned after a session is taken from a package.
type SessionUsage struct {
	AppointmentID uuid.UUID                 `json:"appointmentId"`
	Package       *sessions.CustomerProduct `json:"package"`
}

// MarkSessionUsed consumes one session for the appointment. Repeating the
// call fails with ErrSessionAlreadyUsed and never double-counts.
func (s *Service) MarkSessionUsed(ctx context.Context, id uuid.UUID) (*SessionUsage, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.mark_session_used")
	defer span.End()
	span.SetAttributes(attribute.String("supportdesk.appointment_id", id.String()))

	cp, err := s.store.MarkSessionUsed(ctx, id, s.now().UTC())
	if err != nil {
		s.metrics.ObserveSessionConsumed(sessionResult(err))
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveSessionConsumed("ok")
	s.logger.Info("session consumed",
		"appointment_id", id,
		"customer_product_id", cp.ID,
		"remaining_sessions", cp.RemainingSessions,
	)
	usage := &SessionUsage{AppointmentID: id, Package: cp}
	s.publish(ctx, notify.KindSessionConsumed, usage)
	return usage, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason, kind string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("supportdesk.appointment_id", id.String()),
		attribute.String("supportdesk.status", string(to)),
	)

	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}
	if err := s.store.Transition(ctx, id, appt.Status, to, reason); err != nil {
		span.RecordError(err)
		return nil, err
	}
	appt.Status = to
	if to == StatusCancelled {
		appt.CancelReason = reason
	}
	s.metrics.ObserveAppointment(string(to))
	s.logger.Info("appointment status changed", "appointment_id", id, "status", to)
	s.publish(ctx, kind, appt)
	return appt, nil
}

func (s *Service) resolve(ctx context.Context, date, productID, branchID string) (*resolved, error) {
	settings, err := s.catalog.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	r := &resolved{settings: settings, loc: settings.Location(s.opts.Location)}

	var branchRules, productRules *scheduling.ScopeRules
	if branchID != "" {
		r.branch, err = s.catalog.GetBranch(ctx, branchID)
		if err != nil {
			return nil, err
		}
		branchRules = &r.branch.ScopeRules
	}
	if productID != "" {
		r.product, err = s.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		productRules = r.product.SchedulingRules
	}

	r.sc, err = scheduling.ResolveSchedulingContext(date, settings.ScopeRules, branchRules, productRules)
	if err != nil {
		return nil, fmt.Errorf("appointments: resolve %s: %w", date, err)
	}
	for _, amb := range r.sc.Ambiguities {
		s.metrics.ObserveAmbiguousRule(amb.Scope.String())
		s.logger.Warn("ambiguous specific-day rule", "scope", amb.Scope.String(), "date", amb.Date, "matches", amb.Matches)
	}
	r.breaks = catalog.BreaksFor(settings, r.branch)
	return r, nil
}

// checkBookable applies the policy checks that do not depend on occupancy.
func (s *Service) checkBookable(r *resolved, slot string) error {
	if r.sc.IsOff {
		return fmt.Errorf("%w: %s", ErrDateOff, r.sc.Date)
	}
	if !s.withinWindow(r.sc.Date, r.loc) {
		return fmt.Errorf("%w: %s", ErrOutsideWindow, r.sc.Date)
	}
	open, err := scheduling.FilterPastSlots([]string{slot}, r.sc.Date, s.now(), r.loc, s.opts.MinBookingNotice)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return fmt.Errorf("%w: %s %s has passed", ErrSlotUnavailable, r.sc.Date, slot)
	}
	return nil
}

func (s *Service) slotCheck(r *resolved, slot string) SlotCheck {
	return func(existing []Appointment) error {
		slots, err := scheduling.GenerateAvailableSlots(r.sc, AsBookings(existing), r.breaks)
		if err != nil {
			return fmt.Errorf("appointments: slot check: %w", err)
		}
		if !scheduling.IsSlotAvailable(slots, slot) {
			return fmt.Errorf("%w: %s %s", ErrSlotUnavailable, r.sc.Date, slot)
		}
		return nil
	}
}

func (s *Service) withinWindow(date string, loc *time.Location) bool {
	if s.opts.AdvanceBookingDays <= 0 {
		return true
	}
	day, err := scheduling.ParseDate(date)
	if err != nil {
		return false
	}
	local := s.now().In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return !day.After(today.AddDate(0, 0, s.opts.AdvanceBookingDays))
}

func (s *Service) scheduleReminder(ctx context.Context, appt *Appointment, settings *catalog.AppSettings) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.ScheduleAppointment(ctx, appt, settings); err != nil {
		s.logger.Warn("appointment reminder not scheduled", "appointment_id", appt.ID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, payload any) {
	if err := s.notifier.Notify(ctx, kind, payload); err != nil {
		s.logger.Warn("notification failed", "kind", kind, "error", err)
	}
}

func sessionResult(err error) string {
	switch {
	case errors.Is(err, ErrSessionAlreadyUsed):
		return "already_used"
	case errors.Is(err, sessions.ErrNoSessionsRemaining):
		return "exhausted"
	case errors.Is(err, ErrNoPackage):
		return "no_package"
	default:
		return "error"
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
