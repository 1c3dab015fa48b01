package monitor

import (
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/metrics"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/notifier"
	"indodax-monitor-bot/internal/statemanager"
	"time"

	"go.uber.org/zap"
)

// NewEngine wires the alert, order-fill and stop-loss loops into one Supervisor.
func NewEngine(
	cfg models.MonitorConfig,
	stores *statemanager.Stores,
	ex exchange.Exchange,
	n notifier.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Supervisor {
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }

	alerts := NewLoop[models.AlertBook, models.AlertRecord](seconds(cfg.AlertIntervalSec), stores.Alerts,
		BookCollection[models.AlertBook, models.AlertRecord]{},
		NewAlertPolicy(ex), n, m, logger).WithRecordTimeout(seconds(cfg.RecordTimeoutSec))
	orders := NewLoop[models.OrderBook, models.PendingOrder](seconds(cfg.OrderFillIntervalSec), stores.Orders,
		BookCollection[models.OrderBook, models.PendingOrder]{},
		NewOrderFillPolicy(ex, cfg.OrderHistoryWindow), n, m, logger).WithRecordTimeout(seconds(cfg.RecordTimeoutSec))
	stoploss := NewLoop[models.StoplossList, models.StoplossRecord](seconds(cfg.StoplossIntervalSec), stores.Stoplosses,
		StoplossCollection{},
		NewStoplossPolicy(ex), n, m, logger).WithRecordTimeout(seconds(cfg.RecordTimeoutSec))

	return NewSupervisor([]Runner{alerts, orders, stoploss}, seconds(cfg.TickTimeoutSec), m, logger)
}
