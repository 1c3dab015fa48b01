package exchange

import (
	"context"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/models"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// binanceInvalidSymbol is the Binance error code for an unknown symbol.
const binanceInvalidSymbol = -1121

// BinanceExchange implements Exchange on the Binance spot API.
type BinanceExchange struct {
	client *binance.Client
	logger *zap.Logger
}

// NewBinanceExchange 创建一个新的 BinanceExchange 实例
func NewBinanceExchange(cfg models.ExchangeConfig, logger *zap.Logger) *BinanceExchange {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &BinanceExchange{
		client: client,
		logger: logger.With(zap.String("exchange", "binance")),
	}
}

// binanceSymbol converts "btc_usdt" into "BTCUSDT".
func binanceSymbol(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pair), "_", ""))
}

// mapBinanceError turns an invalid-symbol API error into ErrPairNotFound.
func mapBinanceError(err error, pair string) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == binanceInvalidSymbol {
		return fmt.Errorf("%w: %s", ErrPairNotFound, pair)
	}
	return err
}

// GetLastPrice returns the latest price of pair.
func (b *BinanceExchange) GetLastPrice(ctx context.Context, pair string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(binanceSymbol(pair)).Do(ctx)
	if err != nil {
		return 0, mapBinanceError(err, pair)
	}
	for _, p := range prices {
		if p.Symbol != binanceSymbol(pair) {
			continue
		}
		d, err := decimal.NewFromString(p.Price)
		if err != nil {
			return 0, fmt.Errorf("binance price %s: %w", pair, err)
		}
		price, _ := d.Float64()
		return price, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrPairNotFound, pair)
}

// GetRecentOrders lists the most recent orders of pair.
func (b *BinanceExchange) GetRecentOrders(ctx context.Context, pair string, limit int) ([]LedgerEntry, error) {
	orders, err := b.client.NewListOrdersService().Symbol(binanceSymbol(pair)).Limit(limit).Do(ctx)
	if err != nil {
		return nil, mapBinanceError(err, pair)
	}
	entries := make([]LedgerEntry, 0, len(orders))
	for _, o := range orders {
		remaining, err := remainingQuantity(o.OrigQuantity, o.ExecutedQuantity)
		if err != nil {
			b.logger.Warn("跳过无法解析的订单记录", zap.Int64("orderID", o.OrderID), zap.Error(err))
			continue
		}
		entries = append(entries, LedgerEntry{
			OrderID:   strconv.FormatInt(o.OrderID, 10),
			Remaining: remaining,
		})
	}
	return entries, nil
}

func remainingQuantity(orig, executed string) (float64, error) {
	o, err := decimal.NewFromString(orig)
	if err != nil {
		return 0, fmt.Errorf("orig quantity %q: %w", orig, err)
	}
	e, err := decimal.NewFromString(executed)
	if err != nil {
		return 0, fmt.Errorf("executed quantity %q: %w", executed, err)
	}
	r := o.Sub(e)
	if r.IsNegative() {
		r = decimal.Zero
	}
	f, _ := r.Float64()
	return f, nil
}

// PlaceOrder submits a GTC limit order.
func (b *BinanceExchange) PlaceOrder(ctx context.Context, pair string, side models.Side, price, amount float64) (string, error) {
	var sideType binance.SideType
	switch side {
	case models.Buy:
		sideType = binance.SideTypeBuy
	case models.Sell:
		sideType = binance.SideTypeSell
	default:
		return "", fmt.Errorf("unknown order side %q", side)
	}

	order, err := b.client.NewCreateOrderService().
		Symbol(binanceSymbol(pair)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Side(sideType).
		Quantity(decimal.NewFromFloat(amount).String()).
		Price(decimal.NewFromFloat(price).String()).
		Do(ctx)
	if err != nil {
		return "", mapBinanceError(err, pair)
	}
	id := strconv.FormatInt(order.OrderID, 10)
	b.logger.Info("下单成功", zap.String("pair", pair), zap.String("side", string(side)), zap.String("orderID", id))
	return id, nil
}

// CancelOrder cancels an open order. Binance does not need the side.
func (b *BinanceExchange) CancelOrder(ctx context.Context, pair, orderID string, _ models.Side) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid binance order id %q: %w", orderID, err)
	}
	_, err = b.client.NewCancelOrderService().Symbol(binanceSymbol(pair)).OrderID(id).Do(ctx)
	return mapBinanceError(err, pair)
}

// Balances returns the free balance of every asset on the account.
func (b *BinanceExchange) Balances(ctx context.Context) (map[string]float64, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}
	balances := make(map[string]float64, len(account.Balances))
	for _, bal := range account.Balances {
		free, err := decimal.NewFromString(bal.Free)
		if err != nil {
			b.logger.Warn("跳过无法解析的余额", zap.String("asset", bal.Asset), zap.Error(err))
			continue
		}
		balances[strings.ToLower(bal.Asset)], _ = free.Float64()
	}
	return balances, nil
}
