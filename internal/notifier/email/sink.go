// Package email delivers records by SMTP.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"listingwatch/internal/listing"
	"listingwatch/internal/notifier"
	logx "listingwatch/pkg/logx"

	"github.com/wneessen/go-mail"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// SubjectPrefix is prepended to every subject, e.g. "[listingwatch]".
	SubjectPrefix string
	// TLS is one of "mandatory" (default), "opportunistic", "ssl", "none".
	TLS     string
	Timeout time.Duration
}

type Sink struct {
	cfg  Config
	log  logx.Logger
	opts []mail.Option
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("email host is required")
	}
	if strings.TrimSpace(cfg.From) == "" || len(cfg.To) == 0 {
		return nil, errors.New("email from and to are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	opts := []mail.Option{mail.WithTimeout(cfg.Timeout)}
	switch strings.ToLower(strings.TrimSpace(cfg.TLS)) {
	case "", "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "ssl":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, fmt.Errorf("email tls %q: want mandatory, opportunistic, ssl or none", cfg.TLS)
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return &Sink{cfg: cfg, log: log, opts: opts}, nil
}

func (s *Sink) Name() string { return "email" }

func (s *Sink) Send(ctx context.Context, rec listing.Record) error {
	m, err := s.message(notifier.Title(rec), notifier.PlainText(rec))
	if err != nil {
		return err
	}
	return s.deliver(ctx, m)
}

func (s *Sink) SendError(ctx context.Context, message string) error {
	m, err := s.message(subjectAlert, message)
	if err != nil {
		return err
	}
	return s.deliver(ctx, m)
}

const (
	subjectAlert  = "Alert"
	subjectStatus = "Status"
)

func (s *Sink) SendStatus(ctx context.Context, message string) error {
	m, err := s.message(subjectStatus, message)
	if err != nil {
		return err
	}
	return s.deliver(ctx, m)
}

func (s *Sink) message(subject, body string) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("email from: %w", err)
	}
	if err := m.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("email to: %w", err)
	}
	if p := strings.TrimSpace(s.cfg.SubjectPrefix); p != "" {
		subject = p + " " + subject
	}
	m.Subject(subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, body)
	return m, nil
}

func (s *Sink) deliver(ctx context.Context, m *mail.Msg) error {
	c, err := mail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return fmt.Errorf("email client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}
