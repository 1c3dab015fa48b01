package exchange

import (
	"context"
	"errors"
	"indodax-monitor-bot/internal/models"
)

// ErrPairNotFound is returned when the exchange does not know the trading pair.
// Callers treat it as permanent: retrying the same pair will not help.
var ErrPairNotFound = errors.New("trading pair not found")

// ErrBelowMinimum is returned when an order total is under the exchange minimum.
var ErrBelowMinimum = errors.New("order total below exchange minimum")

// LedgerEntry is one order from the exchange's recent order history.
type LedgerEntry struct {
	OrderID   string
	Remaining float64
}

// MarketData 提供最新成交价
type MarketData interface {
	GetLastPrice(ctx context.Context, pair string) (float64, error)
}

// OrderLedger 提供最近的订单历史
type OrderLedger interface {
	GetRecentOrders(ctx context.Context, pair string, limit int) ([]LedgerEntry, error)
}

// Trader places and cancels limit orders.
type Trader interface {
	PlaceOrder(ctx context.Context, pair string, side models.Side, price, amount float64) (string, error)
	CancelOrder(ctx context.Context, pair, orderID string, side models.Side) error
}

// Wallet 提供账户余额, key 为小写资产代码
type Wallet interface {
	Balances(ctx context.Context) (map[string]float64, error)
}

// Exchange 定义了所有交易所实现必须提供的通用方法。
type Exchange interface {
	MarketData
	OrderLedger
	Trader
	Wallet
}
