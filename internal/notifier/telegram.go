package notifier

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends direct messages through the Telegram Bot API.
// User ids are Telegram chat ids.
type TelegramNotifier struct {
	api    sender
	logger *zap.Logger
}

// NewTelegramNotifier connects to the Bot API with token.
func NewTelegramNotifier(token string, logger *zap.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot api: %w", err)
	}
	return newTelegramNotifier(api, logger), nil
}

func newTelegramNotifier(api sender, logger *zap.Logger) *TelegramNotifier {
	return &TelegramNotifier{api: api, logger: logger.With(zap.String("notifier", "telegram"))}
}

func (n *TelegramNotifier) Send(ctx context.Context, userID, message string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid telegram chat id %q", ErrDelivery, userID)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}

	msg := tgbotapi.NewMessage(chatID, message)
	if _, err := n.api.Send(msg); err != nil {
		n.logger.Warn("failed to notify", zap.Int64("chat_id", chatID), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return nil
}
