package usecase

import (
	"context"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/statemanager"
	"time"
)

type AlertUsecase struct {
	store   *statemanager.Store[models.AlertBook]
	market  exchange.MarketData
	pairs   *PairCatalogue
	access  *Access
	nowFunc func() time.Time
}

func NewAlertUsecase(store *statemanager.Store[models.AlertBook], market exchange.MarketData, pairs *PairCatalogue, access *Access) *AlertUsecase {
	return &AlertUsecase{store: store, market: market, pairs: pairs, access: access, nowFunc: time.Now}
}

// AddAlert stores a single-shot alert. change is an absolute IDR price or a
// percent relative to the current price.
func (u *AlertUsecase) AddAlert(ctx context.Context, userID, symbol, change string) (models.AlertRecord, error) {
	if err := u.access.Check(userID); err != nil {
		return models.AlertRecord{}, err
	}
	pair := u.pairs.Normalize(symbol)
	if err := u.pairs.check(pair); err != nil {
		return models.AlertRecord{}, err
	}

	value, pct, err := parseChange(change)
	if err != nil {
		return models.AlertRecord{}, err
	}
	target := value
	if pct != nil {
		current, err := u.market.GetLastPrice(ctx, pair)
		if err != nil {
			return models.AlertRecord{}, fmt.Errorf("couldn't fetch current price for %s: %w", pair, err)
		}
		target = applyPercent(current, value)
	}
	if !target.IsPositive() {
		return models.AlertRecord{}, fmt.Errorf("%w: target must be positive", ErrInvalidPrice)
	}

	t, _ := target.Float64()
	now := u.nowFunc().UTC()
	rec := models.AlertRecord{
		ID:        newID(),
		Pair:      pair,
		Target:    t,
		Percent:   pct,
		CreatedAt: &now,
	}
	err = u.store.Mutate(func(book models.AlertBook) (models.AlertBook, bool) {
		book[userID] = append(book[userID], rec)
		return book, true
	})
	if err != nil {
		return models.AlertRecord{}, err
	}
	return rec, nil
}

// ListAlerts returns the user's alerts in insertion order.
func (u *AlertUsecase) ListAlerts(userID string) []models.AlertRecord {
	return u.store.Read()[userID]
}

// RemoveAlert deletes the alert at the 1-based index shown by ListAlerts.
func (u *AlertUsecase) RemoveAlert(userID string, index int) (models.AlertRecord, error) {
	if err := u.access.Check(userID); err != nil {
		return models.AlertRecord{}, err
	}
	var removed models.AlertRecord
	found := false
	err := u.store.Mutate(func(book models.AlertBook) (models.AlertBook, bool) {
		alerts := book[userID]
		if index < 1 || index > len(alerts) {
			return book, false
		}
		removed = alerts[index-1]
		found = true
		book[userID] = append(alerts[:index-1:index-1], alerts[index:]...)
		return book, true
	})
	if err != nil {
		return models.AlertRecord{}, err
	}
	if !found {
		return models.AlertRecord{}, fmt.Errorf("%w: invalid alert index %d", ErrAlertNotFound, index)
	}
	return removed, nil
}
