package mailer

import (
	"context"

	"go.uber.org/zap"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToEmail   string
	Subject   string
	TextBody  string
	HTMLBody  string
}

// Mailer delivers messages to students and staff.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ConsoleMailer logs messages instead of delivering them. Used in development
// and as the fallback when no provider is configured.
type ConsoleMailer struct {
	logger *zap.Logger
}

// NewConsoleMailer constructs a ConsoleMailer.
func NewConsoleMailer(logger *zap.Logger) *ConsoleMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleMailer{logger: logger}
}

// Send logs the message.
func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	m.logger.Sugar().Infow("mail (console)",
		"to", msg.ToEmail,
		"subject", msg.Subject,
		"body", msg.TextBody,
	)
	return nil
}
