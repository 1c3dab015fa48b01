package usecase

import (
	"context"
	"errors"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/persistence"
	"indodax-monitor-bot/internal/statemanager"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMarket struct {
	prices map[string]float64
	err    error
}

func (m *fakeMarket) GetLastPrice(_ context.Context, pair string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	p, ok := m.prices[pair]
	if !ok {
		return 0, errors.New("no price")
	}
	return p, nil
}

type placedOrder struct {
	pair          string
	side          models.Side
	price, amount float64
}

type cancelledOrder struct {
	pair, orderID string
	side          models.Side
}

type fakeTrader struct {
	mu        sync.Mutex
	nextID    int
	placeErr  error
	cancelErr error
	placed    []placedOrder
	cancelled []cancelledOrder
}

func (t *fakeTrader) PlaceOrder(_ context.Context, pair string, side models.Side, price, amount float64) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.placeErr != nil {
		return "", t.placeErr
	}
	t.nextID++
	t.placed = append(t.placed, placedOrder{pair: pair, side: side, price: price, amount: amount})
	return strconv.Itoa(1000 + t.nextID), nil
}

func (t *fakeTrader) CancelOrder(_ context.Context, pair, orderID string, side models.Side) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelErr != nil {
		return t.cancelErr
	}
	t.cancelled = append(t.cancelled, cancelledOrder{pair: pair, orderID: orderID, side: side})
	return nil
}

func newTestStores(t *testing.T) *statemanager.Stores {
	t.Helper()
	repo, err := persistence.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return statemanager.NewStores(repo, zap.NewNop())
}

type fakeWallet struct {
	balances map[string]float64
	err      error
}

func (w *fakeWallet) Balances(context.Context) (map[string]float64, error) {
	return w.balances, w.err
}
