// Package notify drains the notification queue and hands messages to SMTP.
// Delivery runs outside every engine transaction: a mail outage degrades to a
// growing pending backlog, never to a failed state change.
package notify

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"trackline/internal/config"
)

// Sender delivers one rendered message to one recipient.
type Sender interface {
	Send(recipient, subject, body string) error
}

type smtpSender struct {
	dialer        *gomail.Dialer
	senderAddress string
	senderName    string
	log           *zap.Logger
}

// NewSMTPSender builds the production sender from the mail section of the
// config file.
func NewSMTPSender(cfg config.MailConfig, log *zap.Logger) Sender {
	addr := cfg.SenderAddress
	if addr == "" {
		addr = "noreply@trackline.local"
	}
	name := cfg.SenderName
	if name == "" {
		name = "Trackline"
	}
	log.Info("initializing mail sender", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &smtpSender{
		dialer:        gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		senderAddress: addr,
		senderName:    name,
		log:           log,
	}
}

func (s *smtpSender) Send(recipient, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NopSender swallows messages; used when mail is disabled so queued rows are
// marked sent without an SMTP hop.
type NopSender struct{}

func (NopSender) Send(recipient, subject, body string) error { return nil }
