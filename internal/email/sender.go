package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"mareye-api/internal/config"
	"mareye-api/internal/util"
)

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	To          string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Transport delivers one message.
type Transport interface {
	Send(ctx context.Context, from string, msg *Message) error
}

type SMTPTransport struct {
	dialer  *gomail.Dialer
	timeout time.Duration
}

func NewSMTPTransport(cfg config.EmailConfig) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Secure
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	return &SMTPTransport{dialer: d, timeout: cfg.Timeout}
}

func (t *SMTPTransport) Send(ctx context.Context, from string, msg *Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	if msg.ReplyTo != "" {
		m.SetHeader("Reply-To", msg.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		if msg.HTML != "" {
			m.AddAlternative("text/html", msg.HTML)
		}
	} else {
		m.SetBody("text/html", msg.HTML)
	}
	for _, a := range msg.Attachments {
		data := a.Data
		m.Attach(a.Filename,
			gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			}),
		)
	}

	// gomail has no context support; run the dial in the background and stop waiting on cancel.
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- t.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send aborted: %w", ctx.Err())
	}
}

// LogTransport replaces SMTP when EMAIL_DISABLE=true. Bodies are not logged.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(_ context.Context, from string, msg *Message) error {
	t.logger.Info("Email sending disabled, message dropped",
		util.Email("to", msg.To),
		zap.String("from", from),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

// NewTransport picks the transport for the configuration.
func NewTransport(cfg config.EmailConfig, logger *zap.Logger) Transport {
	if cfg.Disabled {
		return NewLogTransport(logger)
	}
	return NewSMTPTransport(cfg)
}
