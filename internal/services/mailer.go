package services

import (
	"context"
	"log"

	"github.com/resend/resend-go/v2"
)

// ResendMailer sends notification email through Resend.
type ResendMailer struct {
	client *resend.Client
	from   string
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) (string, error) {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Text:    email.Text,
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// LogMailer writes email to the log instead of sending it. Used in development
// when no Resend key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, email Email) (string, error) {
	log.Printf("📧 [dev mail] to=%s subject=%q\n%s", email.To, email.Subject, email.Text)
	return "", nil
}
