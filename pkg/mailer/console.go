package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs messages instead of delivering them. Used in development
// and tests.
type ConsoleSender struct {
	logger *zap.Logger
}

// NewConsoleSender constructs a ConsoleSender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// Send logs the message at info level.
func (s *ConsoleSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("outbound email",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.HTMLBody)),
	)
	return nil
}
