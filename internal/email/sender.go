// Package email delivers workflow emails over SMTP.
package email

import (
	"context"
	"fmt"
	"html"
	"time"

	gomail "github.com/wneessen/go-mail"

	"leadscoring_backend/platform/config"
)

// Sender delivers one email to a lead.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

// Send delivers one email. The body is plain text from the workflow's
// action config, wrapped in a minimal HTML shell.
func (s *SMTPSender) Send(ctx context.Context, toEmail, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, fmt.Sprintf("<html><body><p>%s</p></body></html>", html.EscapeString(body)))

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NoopSender is used when email delivery is disabled; sends succeed
// without doing anything so workflow executions stay exercisable in
// development.
type NoopSender struct{}

// Send implements Sender.
func (NoopSender) Send(ctx context.Context, toEmail, subject, body string) error {
	return nil
}
