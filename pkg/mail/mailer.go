// Package mail delivers guest link invitations over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const defaultSMTPTimeout = 10 * time.Second

// ErrSMTPDisabled is returned by Send when delivery is switched off.
var ErrSMTPDisabled = errors.New("smtp: delivery disabled")

// Message is an outbound email. When HTMLBody is set the message is sent as
// multipart/alternative with Body as the plain-text part.
type Message struct {
	From     string
	To       []string
	Subject  string
	Body     string
	HTMLBody string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSettings configures the SMTP mailer. UseTLS selects implicit TLS
// (port 465); otherwise STARTTLS is used whenever the server offers it.
type SMTPSettings struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type smtpMailer struct {
	cfg  SMTPSettings
	dial dialFunc
	now  func() time.Time
}

// NewSMTPMailer validates cfg and returns a Mailer. A disabled configuration
// yields a mailer whose Send always returns ErrSMTPDisabled.
func NewSMTPMailer(cfg SMTPSettings) (Mailer, error) {
	if cfg.Enabled {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("smtp: host is required when enabled")
		}
		if cfg.Port <= 0 {
			return nil, errors.New("smtp: port is required when enabled")
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	return &smtpMailer{cfg: cfg, dial: dialSMTP, now: time.Now}, nil
}

// envelope is the parsed sender and recipient list of one message.
type envelope struct {
	from *mail.Address
	to   []*mail.Address
}

func (m *smtpMailer) envelopeFor(msg Message) (envelope, error) {
	var env envelope

	sender := strings.TrimSpace(msg.From)
	if sender == "" {
		sender = strings.TrimSpace(m.cfg.From)
	}
	if sender == "" {
		return env, errors.New("smtp: sender address is required")
	}
	from, err := mail.ParseAddress(sender)
	if err != nil {
		return env, fmt.Errorf("smtp: invalid from address: %w", err)
	}
	env.from = from

	seen := make(map[string]struct{}, len(msg.To))
	for _, raw := range msg.To {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return env, fmt.Errorf("smtp: invalid recipient address %q: %w", raw, err)
		}
		key := strings.ToLower(addr.Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		env.to = append(env.to, addr)
	}
	if len(env.to) == 0 {
		return env, errors.New("smtp: at least one recipient is required")
	}
	return env, nil
}

// Send delivers msg. Addresses are validated before any connection is made.
func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	if !m.cfg.Enabled {
		return ErrSMTPDisabled
	}
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := m.envelopeFor(msg)
	if err != nil {
		return err
	}
	body, err := buildMessage(env, msg, m.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	client, err := m.dial(ctx, m.cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return transmit(client, env, body)
}

func transmit(client smtpClient, env envelope, body []byte) error {
	if err := client.Mail(env.from.Address); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range env.to {
		if err := client.Rcpt(rcpt.Address); err != nil {
			return fmt.Errorf("smtp: rcpt to %s: %w", rcpt.Address, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := wc.Write(body); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp: end data: %w", err)
	}
	return client.Quit()
}
