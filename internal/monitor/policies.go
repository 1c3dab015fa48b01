package monitor

import (
	"context"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"strconv"

	"github.com/shopspring/decimal"
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func lastPrice(ctx context.Context, md exchange.MarketData, pair string) (float64, error) {
	return memoize(ctx, "price:"+pair, func() (float64, error) {
		return md.GetLastPrice(ctx, pair)
	})
}

// AlertPolicy fires single-shot price alerts.
type AlertPolicy struct {
	market exchange.MarketData
}

func NewAlertPolicy(market exchange.MarketData) *AlertPolicy {
	return &AlertPolicy{market: market}
}

func (p *AlertPolicy) Name() string                      { return "alerts" }
func (p *AlertPolicy) Key(rec models.AlertRecord) string { return rec.Key() }
func (p *AlertPolicy) Active(models.AlertRecord) bool    { return true }

// Decide triggers once the observed price reaches the target.
func (p *AlertPolicy) Decide(rec models.AlertRecord, price float64) Decision {
	if decimal.NewFromFloat(price).GreaterThanOrEqual(decimal.NewFromFloat(rec.Target)) {
		return Trigger
	}
	return Keep
}

func (p *AlertPolicy) Evaluate(ctx context.Context, rec models.AlertRecord) (Verdict, error) {
	price, err := lastPrice(ctx, p.market, rec.Pair)
	if errors.Is(err, exchange.ErrPairNotFound) {
		// Dead pairs are garbage collected silently.
		return Verdict{Decision: Remove}, nil
	}
	if err != nil {
		return Verdict{}, err
	}
	if p.Decide(rec, price) != Trigger {
		return Verdict{Decision: Keep}, nil
	}
	return Verdict{
		Decision: Trigger,
		Message:  fmt.Sprintf("🚨 `%s` hit `%s` IDR (target `%s`)", rec.Pair, formatNumber(price), formatNumber(rec.Target)),
	}, nil
}

// Apply removes the alert; alerts are not re-armed.
func (p *AlertPolicy) Apply(rec models.AlertRecord) (models.AlertRecord, bool) {
	return rec, false
}

// OrderFillPolicy marks pending orders completed once the ledger shows them fully filled.
type OrderFillPolicy struct {
	ledger exchange.OrderLedger
	window int
}

func NewOrderFillPolicy(ledger exchange.OrderLedger, window int) *OrderFillPolicy {
	if window <= 0 {
		window = 20
	}
	return &OrderFillPolicy{ledger: ledger, window: window}
}

func (p *OrderFillPolicy) Name() string                       { return "orders" }
func (p *OrderFillPolicy) Key(rec models.PendingOrder) string { return rec.Key() }
func (p *OrderFillPolicy) Active(rec models.PendingOrder) bool {
	return rec.Status == models.OrderPending
}

// Decide triggers when the order appears in the ledger with nothing left to fill.
// An order missing from the window stays pending.
func (p *OrderFillPolicy) Decide(rec models.PendingOrder, entries []exchange.LedgerEntry) Decision {
	if rec.Status != models.OrderPending {
		return Keep
	}
	for _, e := range entries {
		if e.OrderID != string(rec.OrderID) {
			continue
		}
		if decimal.NewFromFloat(e.Remaining).LessThanOrEqual(decimal.Zero) {
			return Trigger
		}
		return Keep
	}
	return Keep
}

func (p *OrderFillPolicy) Evaluate(ctx context.Context, rec models.PendingOrder) (Verdict, error) {
	entries, err := memoize(ctx, "ledger:"+rec.Pair, func() ([]exchange.LedgerEntry, error) {
		return p.ledger.GetRecentOrders(ctx, rec.Pair, p.window)
	})
	if err != nil {
		return Verdict{}, err
	}
	if p.Decide(rec, entries) != Trigger {
		return Verdict{Decision: Keep}, nil
	}
	return Verdict{
		Decision: Trigger,
		Message: fmt.Sprintf("✅ Your %s order #%s on `%s` has been filled (%s @ %s IDR)",
			rec.OrderSide(), rec.OrderID, rec.Pair, formatNumber(rec.Amount), formatNumber(rec.Price)),
	}, nil
}

// Apply completes the order. Orders are kept for listing.
func (p *OrderFillPolicy) Apply(rec models.PendingOrder) (models.PendingOrder, bool) {
	if rec.Status.CanTransition(models.OrderCompleted) {
		rec.Status = models.OrderCompleted
	}
	return rec, true
}

// StoplossPolicy fires active stop-losses when the price falls to the stop.
type StoplossPolicy struct {
	market exchange.MarketData
}

func NewStoplossPolicy(market exchange.MarketData) *StoplossPolicy {
	return &StoplossPolicy{market: market}
}

func (p *StoplossPolicy) Name() string                         { return "stoploss" }
func (p *StoplossPolicy) Key(rec models.StoplossRecord) string { return rec.Key() }
func (p *StoplossPolicy) Active(rec models.StoplossRecord) bool {
	return rec.Active
}

// Decide triggers when the observed price is at or below the stop price.
func (p *StoplossPolicy) Decide(rec models.StoplossRecord, price float64) Decision {
	if !rec.Active {
		return Keep
	}
	if decimal.NewFromFloat(price).LessThanOrEqual(decimal.NewFromFloat(rec.StopPrice)) {
		return Trigger
	}
	return Keep
}

func (p *StoplossPolicy) Evaluate(ctx context.Context, rec models.StoplossRecord) (Verdict, error) {
	price, err := lastPrice(ctx, p.market, rec.Pair)
	if err != nil {
		return Verdict{}, err
	}
	if p.Decide(rec, price) != Trigger {
		return Verdict{Decision: Keep}, nil
	}
	return Verdict{
		Decision: Trigger,
		Message: fmt.Sprintf("🛑 Stop-loss for `%s` triggered: price `%s` IDR is at or below your stop `%s` IDR",
			rec.Pair, formatNumber(price), formatNumber(rec.StopPrice)),
	}, nil
}

// Apply deactivates the stop-loss; the record is retained.
func (p *StoplossPolicy) Apply(rec models.StoplossRecord) (models.StoplossRecord, bool) {
	rec.Active = false
	return rec, true
}
