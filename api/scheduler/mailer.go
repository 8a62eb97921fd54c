package scheduler

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type sendClient interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendgridMailer delivers e-mail through SendGrid
type SendgridMailer struct {
	fromName  string
	fromEmail string
	client    sendClient
}

// NewSendgridMailer creates a mailer sending as fromName <fromEmail>
func NewSendgridMailer(apiKey, fromName, fromEmail string) *SendgridMailer {
	return &SendgridMailer{
		fromName:  fromName,
		fromEmail: fromEmail,
		client:    sendgrid.NewSendClient(apiKey),
	}
}

// Send sends a single e-mail. A 4xx or 5xx answer is an error.
func (m *SendgridMailer) Send(ctx context.Context, toEmail, toName, subject, htmlContent, plainText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)
	response, err := m.client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned status %d", response.StatusCode)
	}
	return nil
}
