package usecase

import (
	"context"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/statemanager"
	"strings"

	"github.com/samber/lo"
)

type StoplossUsecase struct {
	store  *statemanager.Store[models.StoplossList]
	market exchange.MarketData
	pairs  *PairCatalogue
	access *Access
}

func NewStoplossUsecase(store *statemanager.Store[models.StoplossList], market exchange.MarketData, pairs *PairCatalogue, access *Access) *StoplossUsecase {
	return &StoplossUsecase{store: store, market: market, pairs: pairs, access: access}
}

// AddStoploss arms a stop-loss. stop is an absolute IDR price or a negative
// percent below the current price, e.g. "-5%".
func (u *StoplossUsecase) AddStoploss(ctx context.Context, userID, coin, stop string) (models.StoplossRecord, error) {
	if err := u.access.Check(userID); err != nil {
		return models.StoplossRecord{}, err
	}
	pair := u.pairs.Normalize(coin)
	if err := u.pairs.check(pair); err != nil {
		return models.StoplossRecord{}, err
	}

	value, pct, err := parseChange(stop)
	if err != nil {
		return models.StoplossRecord{}, err
	}
	stopPrice := value
	var percent float64
	if pct != nil {
		if *pct >= 0 {
			return models.StoplossRecord{}, fmt.Errorf("%w: stop-loss percent must be negative", ErrInvalidPrice)
		}
		current, err := u.market.GetLastPrice(ctx, pair)
		if err != nil {
			return models.StoplossRecord{}, fmt.Errorf("couldn't fetch current price for %s: %w", pair, err)
		}
		stopPrice = applyPercent(current, value)
		percent = *pct
	}
	if !stopPrice.IsPositive() {
		return models.StoplossRecord{}, fmt.Errorf("%w: stop price must be positive", ErrInvalidPrice)
	}

	sp, _ := stopPrice.Float64()
	coinSymbol, _, _ := strings.Cut(pair, "_")
	rec := models.StoplossRecord{
		ID:        newID(),
		UserID:    userID,
		Coin:      coinSymbol,
		Pair:      pair,
		StopPrice: sp,
		Percent:   percent,
		Active:    true,
	}
	err = u.store.Mutate(func(list models.StoplossList) (models.StoplossList, bool) {
		return append(list, rec), true
	})
	if err != nil {
		return models.StoplossRecord{}, err
	}
	return rec, nil
}

// ListStoplosses returns the user's stop-losses, fired ones included.
func (u *StoplossUsecase) ListStoplosses(userID string) []models.StoplossRecord {
	return lo.Filter(u.store.Read(), func(s models.StoplossRecord, _ int) bool {
		return s.UserID == userID
	})
}

// RemoveStoploss deletes one of the user's stop-losses by id.
func (u *StoplossUsecase) RemoveStoploss(userID, id string) error {
	if err := u.access.Check(userID); err != nil {
		return err
	}
	found := false
	err := u.store.Mutate(func(list models.StoplossList) (models.StoplossList, bool) {
		kept := lo.Reject(list, func(s models.StoplossRecord, _ int) bool {
			return s.UserID == userID && s.ID == id
		})
		found = len(kept) != len(list)
		return kept, found
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrStoplossNotFound, id)
	}
	return nil
}
