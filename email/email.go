// Package email sends plain-text mail over SMTP. It exists for plugins
// whose commands draft messages that should actually be delivered.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Receipt reports the outcome of a delivery attempt.
type Receipt struct {
	Accepted []string
	Detail   string
}

// Sender delivers messages. Tests substitute a recording fake.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Config holds explicit SMTP settings. Credentials are never read from
// the environment.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// From is the default sender when Message.From is empty.
	From string
}

// SMTPSender delivers mail through one SMTP server using PLAIN auth over
// STARTTLS (the net/smtp default when the server advertises it).
type SMTPSender struct {
	cfg Config
	// send is swappable for tests.
	send func(addr string, auth smtp.Auth, from string, to []string, body []byte) error
}

// NewSMTPSender creates a sender. Host, username, and password are
// required.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("smtp credentials required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from := msg.From
	if from == "" {
		from = s.cfg.From
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	if err := s.send(addr, auth, from, msg.To, formatMessage(from, msg)); err != nil {
		return nil, fmt.Errorf("sending mail: %w", err)
	}

	return &Receipt{
		Accepted: msg.To,
		Detail:   fmt.Sprintf("email sent to %s", strings.Join(msg.To, ", ")),
	}, nil
}

// SplitDraft separates a drafted email whose first line is "Subject: ..."
// into the subject and the remaining body. Drafts without a subject line
// come back with an empty subject and the full text as the body.
func SplitDraft(draft string) (subject, body string) {
	first, rest, _ := strings.Cut(draft, "\n")
	if s, ok := strings.CutPrefix(first, "Subject:"); ok {
		return strings.TrimSpace(s), strings.TrimSpace(rest)
	}
	return "", strings.TrimSpace(draft)
}

// formatMessage renders RFC 5322 headers plus the plain-text body.
func formatMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}
