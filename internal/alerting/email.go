package alerting

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EmailOptions configure SMTP delivery.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// StartTLS upgrades the connection before authenticating.
	StartTLS bool
	Timeout  time.Duration
}

// EmailNotifier sends plain-text mail through an SMTP relay.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailNotifier constructs an EmailNotifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &EmailNotifier{opts: opts, logger: logger.With().Str("component", "alert_email").Logger()}
}

func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	if len(e.opts.To) == 0 {
		return fmt.Errorf("email recipients not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	addr := net.JoinHostPort(e.opts.Host, strconv.Itoa(e.opts.Port))
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.opts.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.opts.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: e.opts.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if e.opts.Username != "" {
		auth := smtp.PlainAuth("", e.opts.Username, e.opts.Password, e.opts.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(e.opts.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range e.opts.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMail(e.opts.From, e.opts.To, msg, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("write smtp body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish smtp body: %w", err)
	}
	if err := client.Quit(); err != nil {
		e.logger.Debug().Err(err).Msg("smtp quit failed")
	}

	e.logger.Info().Str("kind", string(msg.Kind)).Int("recipients", len(e.opts.To)).Msg("告警已发送 (Email)")
	return nil
}

func buildMail(from string, to []string, msg Message, now time.Time) []byte {
	subject := msg.Title
	if subject == "" {
		subject = "[Stock Alert]"
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.BEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(msg.Text()))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	if encoded != "" {
		b.WriteString(encoded + "\r\n")
	}
	return []byte(b.String())
}

var _ Notifier = (*EmailNotifier)(nil)
