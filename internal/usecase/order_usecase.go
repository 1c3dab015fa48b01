package usecase

import (
	"context"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/statemanager"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderUsecase struct {
	store  *statemanager.Store[models.OrderBook]
	trader exchange.Trader
	pairs  *PairCatalogue
	access *Access
	logger *zap.Logger
}

func NewOrderUsecase(store *statemanager.Store[models.OrderBook], trader exchange.Trader, pairs *PairCatalogue, access *Access, logger *zap.Logger) *OrderUsecase {
	return &OrderUsecase{store: store, trader: trader, pairs: pairs, access: access, logger: logger}
}

// PlaceOrder places a limit order on the exchange and tracks it as pending.
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID, coin string, side models.Side, price, amount float64) (models.PendingOrder, error) {
	if err := u.access.Check(userID); err != nil {
		return models.PendingOrder{}, err
	}
	if side != models.Buy && side != models.Sell {
		return models.PendingOrder{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if price <= 0 {
		return models.PendingOrder{}, ErrInvalidPrice
	}
	if amount <= 0 {
		return models.PendingOrder{}, ErrInvalidAmount
	}
	pair := u.pairs.Normalize(coin)
	if err := u.pairs.check(pair); err != nil {
		return models.PendingOrder{}, err
	}

	orderID, err := u.trader.PlaceOrder(ctx, pair, side, price, amount)
	if err != nil {
		return models.PendingOrder{}, err
	}

	total, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(amount)).Float64()
	order := models.PendingOrder{
		OrderID: models.OrderID(orderID),
		Pair:    pair,
		Price:   price,
		Amount:  amount,
		Total:   total,
		Status:  models.OrderPending,
		Side:    side,
	}
	err = u.store.Mutate(func(book models.OrderBook) (models.OrderBook, bool) {
		book[userID] = append(book[userID], order)
		return book, true
	})
	if err != nil {
		// 交易所已接受该订单, 但本地未记录
		u.logger.Error("Order placed but not recorded", zap.String("user_id", userID), zap.String("orderID", orderID), zap.Error(err))
		return order, err
	}
	return order, nil
}

// ListOrders returns the user's orders, optionally only one side.
func (u *OrderUsecase) ListOrders(userID string, side models.Side) []models.PendingOrder {
	orders := u.store.Read()[userID]
	if side == "" {
		return orders
	}
	return lo.Filter(orders, func(o models.PendingOrder, _ int) bool {
		return o.OrderSide() == side
	})
}

// CancelOrder cancels a pending order on the exchange and marks it cancelled.
// An empty side matches either side.
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID, orderID string, side models.Side) (models.PendingOrder, error) {
	if err := u.access.Check(userID); err != nil {
		return models.PendingOrder{}, err
	}

	matches := func(o models.PendingOrder) bool {
		return string(o.OrderID) == orderID && (side == "" || o.OrderSide() == side)
	}
	order, ok := lo.Find(u.store.Read()[userID], matches)
	if !ok {
		return models.PendingOrder{}, fmt.Errorf("%w: no order with ID %s", ErrOrderNotFound, orderID)
	}
	if order.Status != models.OrderPending {
		return order, fmt.Errorf("%w: order %s is %s", ErrOrderNotPending, orderID, order.Status)
	}

	if err := u.trader.CancelOrder(ctx, order.Pair, orderID, order.OrderSide()); err != nil {
		return order, err
	}

	var notPending bool
	err := u.store.Mutate(func(book models.OrderBook) (models.OrderBook, bool) {
		orders := book[userID]
		_, idx, found := lo.FindIndexOf(orders, matches)
		if !found {
			return book, false
		}
		if !orders[idx].Status.CanTransition(models.OrderCancelled) {
			notPending = true
			order = orders[idx]
			return book, false
		}
		orders[idx].Status = models.OrderCancelled
		order = orders[idx]
		return book, true
	})
	if err != nil {
		return order, err
	}
	if notPending {
		return order, fmt.Errorf("%w: order %s is %s", ErrOrderNotPending, orderID, order.Status)
	}
	return order, nil
}
