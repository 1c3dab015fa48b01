package exchange

import (
	"fmt"
	"indodax-monitor-bot/internal/models"

	"go.uber.org/zap"
)

// New returns the exchange adapter named by cfg.Name.
func New(cfg models.ExchangeConfig, logger *zap.Logger) (Exchange, error) {
	switch cfg.Name {
	case "", "indodax":
		return NewIndodaxExchange(cfg, logger), nil
	case "binance":
		return NewBinanceExchange(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Name)
	}
}
