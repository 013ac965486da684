package notify

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/samber/oops"
	gomail "github.com/wneessen/go-mail"

	"github.com/MrEthical07/tokenauth"
)

// SMTPConfig addresses the relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds dial and each SMTP command.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTP sends multipart (text + HTML) email through a relay. STARTTLS is used
// when the relay offers it.
type SMTP struct {
	cfg  SMTPConfig
	now  func() time.Time
	send sendFunc
}

// NewSMTP validates cfg and returns an SMTP notifier.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host and from address are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if _, err := newClient(cfg); err != nil {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}

	s := &SMTP{cfg: cfg, now: time.Now}
	s.send = s.dialAndSend
	return s, nil
}

// Send implements tokenauth.Notifier.
func (s *SMTP) Send(ctx context.Context, msg tokenauth.Message) error {
	m, err := buildMessage(s.cfg.From, msg, s.now())
	if err != nil {
		return oops.Code("SMTP_BUILD_FAILED").With("subject", msg.Subject).Wrap(err)
	}
	if err := s.send(ctx, m); err != nil {
		return oops.Code("SMTP_SEND_FAILED").With("host", s.cfg.Host).With("subject", msg.Subject).Wrap(err)
	}
	return nil
}

// dialAndSend opens one connection per message; the client is not shared
// between goroutines.
func (s *SMTP) dialAndSend(ctx context.Context, m *gomail.Msg) error {
	c, err := newClient(s.cfg)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, m)
}

func newClient(cfg SMTPConfig) (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTLSConfig(&tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	return gomail.NewClient(cfg.Host, opts...)
}

// buildMessage renders msg as multipart/alternative when both bodies are set.
func buildMessage(from string, msg tokenauth.Message, now time.Time) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, err
	}
	if err := m.To(msg.To); err != nil {
		return nil, err
	}
	m.Subject(singleLine(msg.Subject))
	m.SetDateWithValue(now)
	m.SetMessageID()

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

// singleLine folds CR and LF so a subject cannot start a new header.
func singleLine(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}
