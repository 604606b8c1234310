package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/salonchat/supportdesk/pkg/logging"
)

// sendgridAPI posts a v3 mail and reports the HTTP status and body.
type sendgridAPI interface {
	Post(ctx context.Context, email *mail.SGMailV3) (status int, body string, err error)
}

type sendgridClient struct {
	client *sendgrid.Client
}

func (c sendgridClient) Post(ctx context.Context, email *mail.SGMailV3) (int, string, error) {
	resp, err := c.client.SendWithContext(ctx, email)
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, resp.Body, nil
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends email through the SendGrid API.
type SendGridSender struct {
	api    sendgridAPI
	from   sender
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		api:    sendgridClient{client: sendgrid.NewSendClient(cfg.APIKey)},
		from:   newSender(cfg.FromEmail, cfg.FromName),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.api == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if msg.To == "" {
		return errNoRecipient
	}

	email := mail.NewSingleEmail(
		mail.NewEmail(s.from.name, s.from.email),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		msg.htmlOrText(),
	)
	status, body, err := s.api.Post(ctx, email)
	switch {
	case err != nil:
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	case status >= 400:
		s.logger.Error("sendgrid rejected email", "status", status, "body", body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", status)
	}
	s.logger.Info("email sent", "provider", "sendgrid", "to", msg.To, "subject", msg.Subject)
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)
