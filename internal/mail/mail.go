// SPDX-License-Identifier: MIT

// Package mail sends operator notifications for archive failures.
package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/pitwall-live/pitwall/internal/config"
	"github.com/pitwall-live/pitwall/internal/log"
)

// Sender delivers one notification message.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// New builds a sender from the mail config. Missing credentials fall back
// to a no-op sender that only logs, so a dev deployment without mailgun
// still archives.
func New(cfg config.Mail) Sender {
	if cfg.Domain == "" || cfg.APIKey == "" || cfg.To == "" {
		return Noop{}
	}
	return &mailgunSender{
		mg:   mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		from: cfg.From,
		to:   cfg.To,
	}
}

type mailgunSender struct {
	mg   mailgun.Mailgun
	from string
	to   string
}

func (s *mailgunSender) Send(ctx context.Context, subject, body string) error {
	msg := mailgun.NewMessage(s.from, subject, body, s.to)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, _, err := s.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Noop logs instead of sending.
type Noop struct{}

func (Noop) Send(_ context.Context, subject, _ string) error {
	logger := log.WithComponent("mail")
	logger.Info().Str("subject", subject).
		Str("event", "mail.skipped").Msg("mail not configured, notification dropped")
	return nil
}
