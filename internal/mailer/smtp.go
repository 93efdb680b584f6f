package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the connection settings for the SMTP backend.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers reports over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// SendReport renders the report and sends it in a single SMTP session. The
// context is checked before dialing; gomail itself has no context support.
func (m *SMTPMailer) SendReport(ctx context.Context, msg ReportEmail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := RenderHTML(msg)
	if err != nil {
		return err
	}

	mail := gomail.NewMessage()
	mail.SetHeader("From", m.from)
	mail.SetAddressHeader("To", msg.Email, msg.Username)
	mail.SetHeader("Subject", msg.Subject())
	mail.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(mail); err != nil {
		return fmt.Errorf("send report email to %s: %w", msg.Email, err)
	}

	slog.InfoContext(ctx, "Report email delivered",
		"to", msg.Email,
		"subject", msg.Subject())

	return nil
}
