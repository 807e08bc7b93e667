package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"gatehouse/internal/config"
)

const smtpTimeout = 30 * time.Second

// Ports where a plaintext session is tolerated: the classic relay port and
// the usual local catcher.
var plaintextPorts = map[int]bool{25: true, 1025: true}

var errNoStartTLS = errors.New("server does not offer STARTTLS")

type SMTPSender struct {
	cfg  config.SMTPConfig
	addr string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
}

// Send delivers msg over SMTP, upgrading with STARTTLS when offered. Any
// failure is returned as a *TransportError.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()

	if err := s.deliver(ctx, msg); err != nil {
		return &TransportError{To: msg.To, Err: err}
	}
	slog.Info("email sent", "component", "email", "to", msg.To, "subject", msg.Subject)
	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := net.Dialer{Timeout: smtpTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	} else if !plaintextPorts[s.cfg.Port] {
		client.Close()
		return nil, fmt.Errorf("port %d: %w", s.cfg.Port, errNoStartTLS)
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPSender) deliver(ctx context.Context, msg Message) error {
	client, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := wc.Write([]byte(s.buildMessage(msg, time.Now()))); err != nil {
		wc.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("ending DATA: %w", err)
	}

	if err := client.Quit(); err != nil {
		// The message was accepted; a failed QUIT does not undo that.
		slog.Warn("smtp QUIT failed", "component", "email", "error", err)
	}
	return nil
}

// buildMessage renders RFC 5322 headers and the plain-text body. Recipient
// and subject carry user input, so line breaks are stripped from them.
func (s *SMTPSender) buildMessage(msg Message, now time.Time) string {
	clean := strings.NewReplacer("\r", "", "\n", "")

	var b strings.Builder
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", clean.Replace(msg.To)},
		{"Subject", clean.Replace(msg.Subject)},
		{"Date", now.Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", `text/plain; charset="utf-8"`},
	}
	for _, h := range headers {
		b.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
