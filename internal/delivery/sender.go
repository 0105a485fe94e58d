// Package delivery sends one-time codes to an email address.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the delivery channel could not be reached
// or did not accept the message before the deadline.
var ErrUnavailable = errors.New("delivery unavailable")

// Subjects used by the auth flows.
const (
	SubjectRegistration = "Registration OTP"
	SubjectResend       = "Resent OTP"
	SubjectLogin        = "Login OTP"
	SubjectReset        = "Password Reset OTP"
)

// Sender delivers a code. Senders keep no state between calls, so sending a
// freshly generated code each time is always safe.
type Sender interface {
	Send(ctx context.Context, email, code, subject string) error
}

var bodyTmpl = template.Must(template.New("otp").Parse(
	`<p>Your OTP code is: <b>{{.Code}}</b></p><p>This code will expire in {{.Minutes}} minutes.</p>`))

func renderBody(code string, ttl time.Duration) (string, error) {
	var buf bytes.Buffer
	err := bodyTmpl.Execute(&buf, struct {
		Code    string
		Minutes int
	}{code, int(ttl.Minutes())})
	return buf.String(), err
}

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	// CodeTTL is only used to render the expiry notice in the body.
	CodeTTL time.Duration
}

// SMTPSender delivers codes over SMTP. Port 465 uses implicit TLS, other
// ports require STARTTLS.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.SugaredLogger
}

func NewSMTPSender(cfg SMTPConfig, logger *zap.SugaredLogger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	return &SMTPSender{cfg: cfg, logger: logger}, nil
}

func (s *SMTPSender) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}

func (s *SMTPSender) Send(ctx context.Context, email, code, subject string) error {
	body, err := renderBody(code, s.cfg.CodeTTL)
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	client, err := gomail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Warnw("smtp send failed", "host", s.cfg.Host, "subject", subject, "err", err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Infow("code sent", "subject", subject)
	return nil
}

// LogSender writes codes to the log instead of sending them. It is meant for
// local development where no SMTP server is configured.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email, code, subject string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.logger.Infow("code delivery (log only)", "email", email, "subject", subject, "code", code)
	return nil
}
