package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	MaxConns int
	Timeout  time.Duration
}

// SMTPTransport sends through a pool of persistent SMTP connections.
type SMTPTransport struct {
	pool *smtppool.Pool
	from string
}

func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	pool, err := smtppool.New(poolOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("smtp pool: %w", err)
	}
	return &SMTPTransport{pool: pool, from: cfg.From}, nil
}

func poolOptions(cfg SMTPConfig) smtppool.Opt {
	var auth smtp.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}

	return smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        maxConns,
		IdleTimeout:     cfg.Timeout,
		PoolWaitTimeout: cfg.Timeout,
		TLSConfig:       &tls.Config{ServerName: cfg.Host},
		Auth:            auth,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.pool.Send(smtppool.Email{
		From:    t.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    []byte(msg.Body),
	})
}

func (t *SMTPTransport) Close() {
	t.pool.Close()
}
