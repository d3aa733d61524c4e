package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig configures the SMTP fallback channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	To       []string
}

// Mailer sends a composed message.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSink sends email directly through an SMTP relay.
type SMTPSink struct {
	mailer Mailer
	cfg    SMTPConfig
}

// NewSMTPSink dials cfg.Host with TLS 1.2 or newer.
func NewSMTPSink(cfg SMTPConfig) *SMTPSink {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
	return NewSMTPSinkWithMailer(dialer, cfg)
}

// NewSMTPSinkWithMailer uses a custom mailer.
func NewSMTPSinkWithMailer(mailer Mailer, cfg SMTPConfig) *SMTPSink {
	return &SMTPSink{mailer: mailer, cfg: cfg}
}

// Name implements Sink.
func (s *SMTPSink) Name() string { return "smtp" }

// Send implements Sink. gomail has no context support, so ctx is only
// checked before dialing.
func (s *SMTPSink) Send(ctx context.Context, n Notification) error {
	if n.HTML == "" || len(s.cfg.To) == 0 {
		return ErrSkipped
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)
	msg.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	msg.SetHeader("To", s.cfg.To...)
	if n.ReplyTo != "" {
		msg.SetHeader("Reply-To", n.ReplyTo)
	}
	msg.SetHeader("Subject", n.Subject)
	msg.SetBody("text/html", n.HTML)

	if err := s.mailer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
