package statemanager

import (
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/persistence"

	"go.uber.org/zap"
)

// Collection keys in the durable store.
const (
	AlertsKey   = "alerts"
	OrdersKey   = "orders"
	StoplossKey = "stoploss"
)

// Stores groups the three collection stores shared by the loops and the usecases.
type Stores struct {
	Alerts     *Store[models.AlertBook]
	Orders     *Store[models.OrderBook]
	Stoplosses *Store[models.StoplossList]
}

// NewStores builds one store per collection over the same repository.
func NewStores(repo persistence.Repository, logger *zap.Logger) *Stores {
	return &Stores{
		Alerts: NewStore(AlertsKey, repo, func() models.AlertBook {
			return models.AlertBook{}
		}, logger),
		Orders: NewStore(OrdersKey, repo, func() models.OrderBook {
			return models.OrderBook{}
		}, logger),
		Stoplosses: NewStore(StoplossKey, repo, func() models.StoplossList {
			return models.StoplossList{}
		}, logger),
	}
}
