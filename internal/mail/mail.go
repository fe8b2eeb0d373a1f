// Package mail sends the transactional emails around leads and meetings.
package mail

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/RichardoC/leadline/internal/config"
)

// sendTimeout bounds one SMTP session when the caller sets no deadline.
const sendTimeout = 15 * time.Second

type Message struct {
	To      []string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP mailer, or a log mailer when no host is configured.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	if cfg.SMTPHost == "" {
		return newLogMailer(logger), nil
	}
	return NewSMTP(cfg)
}

type SMTPMailer struct {
	client  *gomail.Client
	from    string
	timeout time.Duration
}

func NewSMTP(cfg config.MailConfig) (*SMTPMailer, error) {
	m := &SMTPMailer{from: cfg.From, timeout: sendTimeout}
	opts := []gomail.Option{
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithTimeout(sendTimeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithDialContextFunc(m.dial),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password))
	}
	client, err := gomail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client for %s: %w", cfg.SMTPHost, err)
	}
	m.client = client
	return m, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("mail %q has no recipients", msg.Subject)
	}
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.from, err)
	}
	if err := out.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipients %v: %w", msg.To, err)
	}
	out.Subject(sanitizeHeader(msg.Subject))
	out.SetDate()
	out.SetBodyString(gomail.TypeTextPlain, msg.Body)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("failed to send mail %q: %w", msg.Subject, err)
	}
	return nil
}

// dial puts the context deadline on the connection itself so a server that
// stops answering mid-session cannot hold the caller.
func (m *SMTPMailer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(m.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// sanitizeHeader keeps user-provided text from injecting extra headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct {
	logger *zap.Logger
}

func newLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail not sent, no SMTP host configured",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)))
	return nil
}
