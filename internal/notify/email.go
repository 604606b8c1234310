package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/salonchat/supportdesk/pkg/logging"
)

const defaultFromName = "Support Desk"

var errNoRecipient = errors.New("notify: email has no recipient")

// EmailSender delivers one email. SendGrid, SES and the log sender are
// interchangeable.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a single outbound email. An empty To addresses the staff
// inbox configured on the Dispatcher.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
}

// htmlOrText falls back to the plain body for providers that require HTML.
func (m EmailMessage) htmlOrText() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Body
}

// sender is the From identity shared by the provider senders.
type sender struct {
	email string
	name  string
}

func newSender(email, name string) sender {
	if name == "" {
		name = defaultFromName
	}
	return sender{email: email, name: name}
}

func (s sender) header() string {
	return fmt.Sprintf("%s <%s>", s.name, s.email)
}

// LogEmailSender only logs; used when no provider is configured.
type LogEmailSender struct {
	logger *logging.Logger
}

func NewLogEmailSender(logger *logging.Logger) *LogEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(_ context.Context, msg EmailMessage) error {
	s.logger.Info("email delivery disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	return nil
}

var _ EmailSender = (*LogEmailSender)(nil)
