// Package notify fans business events out to the staff dashboard and email.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// Event kinds published by the booking, session and chat flows.
const (
	KindAppointmentCreated     = "appointment.created"
	KindAppointmentConfirmed   = "appointment.confirmed"
	KindAppointmentCancelled   = "appointment.cancelled"
	KindAppointmentRescheduled = "appointment.rescheduled"
	KindAppointmentCompleted   = "appointment.completed"
	KindSessionConsumed        = "session.consumed"
	KindPackageAssigned        = "package.assigned"
	KindReminderDue            = "reminder.due"
	KindChatMessage            = "chat.message"
)

// Notifier accepts an event for delivery.
type Notifier interface {
	Notify(ctx context.Context, kind string, payload any) error
}

// Broadcaster pushes events to connected staff dashboards.
type Broadcaster interface {
	Broadcast(kind string, payload any)
}

// Mailable payloads describe the emails they should produce.
type Mailable interface {
	Emails() []EmailMessage
}

// Dispatcher is the production Notifier: every event goes to the dashboard
// hub, and payloads implementing Mailable are also emailed.
type Dispatcher struct {
	hub        Broadcaster
	email      EmailSender
	staffEmail string
	logger     *logging.Logger
}

// NewDispatcher wires a dispatcher. hub and email may be nil.
func NewDispatcher(hub Broadcaster, email EmailSender, staffEmail string, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{hub: hub, email: email, staffEmail: staffEmail, logger: logger}
}

// Notify broadcasts the event and sends its emails. The hub is best effort;
// email failures are returned so callers can record them.
func (d *Dispatcher) Notify(ctx context.Context, kind string, payload any) error {
	if d.hub != nil {
		d.hub.Broadcast(kind, payload)
	}

	mailable, ok := payload.(Mailable)
	if !ok {
		return nil
	}
	if d.email == nil {
		d.logger.Debug("notify: email not configured, skipping", "kind", kind)
		return nil
	}

	var errs []error
	for _, msg := range mailable.Emails() {
		if msg.To == "" {
			if d.staffEmail == "" {
				continue
			}
			msg.To = d.staffEmail
		}
		if err := d.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("notify: %s to %s: %w", kind, msg.To, err))
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, string, any) error { return nil }

var (
	_ Notifier = (*Dispatcher)(nil)
	_ Notifier = Nop{}
)
