package monitor

import (
	"context"
	"errors"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/persistence"
	"indodax-monitor-bot/internal/statemanager"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errUnavailable = errors.New("503 service unavailable")

// fakeMarket serves fixed prices and counts calls per pair.
type fakeMarket struct {
	mu      sync.Mutex
	prices  map[string]float64
	errs    map[string]error
	panics  map[string]bool
	hangs   map[string]bool
	calls   map[string]int
	onFetch func(pair string)
	ledgers map[string][]exchange.LedgerEntry
	ledgerN map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		prices:  make(map[string]float64),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		hangs:   make(map[string]bool),
		calls:   make(map[string]int),
		ledgers: make(map[string][]exchange.LedgerEntry),
		ledgerN: make(map[string]int),
	}
}

func (f *fakeMarket) GetLastPrice(ctx context.Context, pair string) (float64, error) {
	f.mu.Lock()
	f.calls[pair]++
	hook := f.onFetch
	price, err, boom, hang := f.prices[pair], f.errs[pair], f.panics[pair], f.hangs[pair]
	f.mu.Unlock()

	if hook != nil {
		hook(pair)
	}
	if hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if boom {
		panic("corrupt ticker for " + pair)
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}

func (f *fakeMarket) GetRecentOrders(_ context.Context, pair string, limit int) ([]exchange.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgerN[pair]++
	if err := f.errs[pair]; err != nil {
		return nil, err
	}
	entries := f.ledgers[pair]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *fakeMarket) callCount(pair string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pair]
}

// fakeTrader completes the exchange.Exchange interface for engine tests.
type fakeTrader struct{}

func (fakeTrader) PlaceOrder(context.Context, string, models.Side, float64, float64) (string, error) {
	return "1", nil
}

func (fakeTrader) Balances(context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (fakeTrader) CancelOrder(context.Context, string, string, models.Side) error {
	return nil
}

type sentMessage struct {
	userID  string
	message string
}

// fakeNotifier records messages; users in fail get a delivery error.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (n *fakeNotifier) Send(_ context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[userID] {
		return errors.New("cannot send messages to this user")
	}
	n.sent = append(n.sent, sentMessage{userID: userID, message: message})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

// flakyRepository wraps a real repository and can fail saves.
type flakyRepository struct {
	persistence.Repository
	mu       sync.Mutex
	failSave bool
}

func (r *flakyRepository) Save(key string, data []byte) error {
	r.mu.Lock()
	fail := r.failSave
	r.mu.Unlock()
	if fail {
		return errors.New("read-only file system")
	}
	return r.Repository.Save(key, data)
}

func (r *flakyRepository) setFailSave(v bool) {
	r.mu.Lock()
	r.failSave = v
	r.mu.Unlock()
}

type harness struct {
	repo     *flakyRepository
	stores   *statemanager.Stores
	market   *fakeMarket
	notifier *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base, err := persistence.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	repo := &flakyRepository{Repository: base}
	return &harness{
		repo:     repo,
		stores:   statemanager.NewStores(repo, zap.NewNop()),
		market:   newFakeMarket(),
		notifier: &fakeNotifier{fail: make(map[string]bool)},
	}
}

func (h *harness) alertLoop() *Loop[models.AlertBook, models.AlertRecord] {
	return NewLoop[models.AlertBook, models.AlertRecord](0, h.stores.Alerts,
		BookCollection[models.AlertBook, models.AlertRecord]{},
		NewAlertPolicy(h.market), h.notifier, nil, zap.NewNop())
}

func (h *harness) orderLoop() *Loop[models.OrderBook, models.PendingOrder] {
	return NewLoop[models.OrderBook, models.PendingOrder](0, h.stores.Orders,
		BookCollection[models.OrderBook, models.PendingOrder]{},
		NewOrderFillPolicy(h.market, 20), h.notifier, nil, zap.NewNop())
}

func (h *harness) stoplossLoop() *Loop[models.StoplossList, models.StoplossRecord] {
	return NewLoop[models.StoplossList, models.StoplossRecord](0, h.stores.Stoplosses,
		StoplossCollection{},
		NewStoplossPolicy(h.market), h.notifier, nil, zap.NewNop())
}
