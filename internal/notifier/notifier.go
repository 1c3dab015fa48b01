package notifier

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrDelivery marks a message that could not be delivered to the user.
// The engine logs it and never retries.
var ErrDelivery = errors.New("notification delivery failed")

// Notifier delivers a direct message to one user.
type Notifier interface {
	Send(ctx context.Context, userID, message string) error
}

// LogNotifier writes messages to the log instead of delivering them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With(zap.String("notifier", "log"))}
}

func (n *LogNotifier) Send(_ context.Context, userID, message string) error {
	n.logger.Info("notify", zap.String("user_id", userID), zap.String("text", message))
	return nil
}
