// Package mailer sends plain-text email over SMTP with gomail.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c Config) validate() error {
	if c.Host == "" {
		return errors.New("mailer: missing SMTP host")
	}
	if c.Port == 0 {
		return errors.New("mailer: missing SMTP port")
	}
	if c.From == "" {
		return errors.New("mailer: missing sender address")
	}
	return nil
}

// Sender delivers composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer represents an email sender.
type Mailer struct {
	from   string
	sender Sender
}

// Email represents an email message.
type Email struct {
	To      []string
	ReplyTo string
	Subject string
	Body    string
}

// New creates a Mailer that dials the configured SMTP server for every send.
func New(cfg Config) (*Mailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return NewWithSender(cfg.From, dialer), nil
}

// NewWithSender creates a Mailer on top of an existing Sender.
func NewWithSender(from string, sender Sender) *Mailer {
	return &Mailer{from: from, sender: sender}
}

// Send sends a single email. gomail has no notion of a context, so ctx is
// only checked before dialing.
func (m *Mailer) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return errors.New("mailer: no recipients specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.sender.DialAndSend(m.message(email)); err != nil {
		return fmt.Errorf("mailer: sending %q: %w", email.Subject, err)
	}
	return nil
}

func (m *Mailer) message(email Email) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To...)
	if email.ReplyTo != "" {
		msg.SetHeader("Reply-To", email.ReplyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)
	return msg
}
