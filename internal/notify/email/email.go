// Package email sends new-match notifications over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/vin-monitor/internal/notify"
)

// DefaultPort is the submission port used when none is configured.
const DefaultPort = 587

// Config describes the SMTP relay and the envelope.
type Config struct {
	To       []string
	From     string
	Server   string
	Port     int
	User     string
	Password string
}

// Notifier delivers one plain-text email per message.
type Notifier struct {
	cfg Config
	now func() time.Time
}

// New validates cfg and returns a Notifier.
func New(cfg Config) (*Notifier, error) {
	var errs []error
	if len(cfg.To) == 0 {
		errs = append(errs, errors.New("email: at least one recipient is required"))
	}
	if cfg.From == "" {
		errs = append(errs, errors.New("email: sender is required"))
	}
	if cfg.Server == "" {
		errs = append(errs, errors.New("email: smtp server is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	return &Notifier{cfg: cfg, now: time.Now}, nil
}

// Name implements notify.Notifier.
func (n *Notifier) Name() string { return "email" }

// Notify implements notify.Notifier.
func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	addr := net.JoinHostPort(n.cfg.Server, strconv.Itoa(n.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, n.cfg.Server)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("email: handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: n.cfg.Server, MinVersion: tls.VersionTLS12}
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}
	if n.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("email: server does not advertise AUTH")
		}
		auth := smtp.PlainAuth("", n.cfg.User, n.cfg.Password, n.cfg.Server)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}

	if err := c.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("email: mail from: %w", err)
	}
	for _, rcpt := range n.cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("email: rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := w.Write(n.compose(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: finish body: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("email: quit: %w", err)
	}
	return nil
}

func (n *Notifier) compose(msg notify.Message) []byte {
	var b bytes.Buffer
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", n.cfg.From)
	header("To", strings.Join(n.cfg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", n.now().Format(time.RFC1123Z))
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.Bytes()
}
