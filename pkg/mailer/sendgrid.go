package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

// NewSendGridSender constructs a SendGrid-backed Sender.
func NewSendGridSender(apiKey, fromName, fromEmail string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
	}
}

// Send delivers a single message.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	to := sgmail.NewEmail("", msg.To)
	m := sgmail.NewSingleEmail(s.from, msg.Subject, to, "", msg.HTMLBody)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sendgrid send: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
