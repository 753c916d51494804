package service

import (
	"context"

	"go.uber.org/zap"
)

// Mailer delivers account emails.
type Mailer interface {
	// SendConfirmation sends the email-confirmation link to the account owner.
	SendConfirmation(ctx context.Context, to, name, link string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct{ log *zap.Logger }

// NewLogMailer constructs a LogMailer.
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{log: log}
}

// SendConfirmation logs the recipient and the confirmation link.
func (m *LogMailer) SendConfirmation(_ context.Context, to, name, link string) error {
	m.log.Info("confirmation mail", zap.String("to", to), zap.String("name", name), zap.String("link", link))
	return nil
}
