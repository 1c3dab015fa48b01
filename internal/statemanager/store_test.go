package statemanager

import (
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/persistence"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRepository is an in-memory Repository whose failures can be switched on.
type mockRepository struct {
	sync.Mutex
	data      map[string][]byte
	saveError error
	loadError error
	saves     int
}

func newMockRepository() *mockRepository {
	return &mockRepository{data: make(map[string][]byte)}
}

func (m *mockRepository) Load(key string) ([]byte, error) {
	m.Lock()
	defer m.Unlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	d, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, d...), nil
}

func (m *mockRepository) Save(key string, data []byte) error {
	m.Lock()
	defer m.Unlock()
	m.saves++
	if m.saveError != nil {
		return m.saveError
	}
	m.data[key] = append([]byte{}, data...)
	return nil
}

func (m *mockRepository) Close() error { return nil }

func (m *mockRepository) raw(key string) string {
	m.Lock()
	defer m.Unlock()
	return string(m.data[key])
}

func newAlertStore(repo persistence.Repository) *Store[models.AlertBook] {
	return NewStores(repo, zap.NewNop()).Alerts
}

func TestReadEmptyWhenMissing(t *testing.T) {
	store := newAlertStore(newMockRepository())
	book := store.Read()
	require.NotNil(t, book)
	assert.Empty(t, book)
}

func TestReadEmptyWhenMalformed(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"blank":   "  \n",
		"null":    "null",
		"wrong":   `["a","b"]`,
	} {
		t.Run(name, func(t *testing.T) {
			repo := newMockRepository()
			repo.data[AlertsKey] = []byte(content)
			book := newAlertStore(repo).Read()
			require.NotNil(t, book)
			assert.Empty(t, book)
		})
	}
}

func TestReadEmptyWhenRepositoryFails(t *testing.T) {
	repo := newMockRepository()
	repo.loadError = errors.New("disk gone")
	assert.Empty(t, newAlertStore(repo).Read())
}

func TestSaveThenReadIsIdempotent(t *testing.T) {
	pct := 10.0
	cases := map[string]models.AlertBook{
		"empty": {},
		"populated": {
			"42": {
				{ID: "a1", Pair: "doge_idr", Target: 10000},
				{ID: "a2", Pair: "btc_idr", Target: 1.5e9, Percent: &pct},
			},
			"7": {{ID: "b1", Pair: "eth_idr", Target: 5e7}},
		},
	}
	for name, book := range cases {
		t.Run(name, func(t *testing.T) {
			store := newAlertStore(newMockRepository())
			require.NoError(t, store.Save(book))
			assert.Equal(t, book, store.Read())

			// Saving what was read back must not change it either.
			require.NoError(t, store.Save(store.Read()))
			assert.Equal(t, book, store.Read())
		})
	}
}

func TestMutateSkipsWriteWhenUnchanged(t *testing.T) {
	repo := newMockRepository()
	store := newAlertStore(repo)

	err := store.Mutate(func(b models.AlertBook) (models.AlertBook, bool) {
		return b, false
	})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.saves)
}

func TestConcurrentMutateLosesNoUpdate(t *testing.T) {
	repo := newMockRepository()
	store := newAlertStore(repo)

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Mutate(func(b models.AlertBook) (models.AlertBook, bool) {
				b["u"] = append(b["u"], models.AlertRecord{ID: fmt.Sprintf("id-%d", i), Pair: "doge_idr", Target: 1})
				return b, true
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	book := store.Read()
	require.Len(t, book["u"], writers)
	seen := make(map[string]bool)
	for _, rec := range book["u"] {
		seen[rec.ID] = true
	}
	assert.Len(t, seen, writers)
}

func TestSaveFailureKeepsPreviousContent(t *testing.T) {
	repo := newMockRepository()
	store := newAlertStore(repo)
	require.NoError(t, store.Save(models.AlertBook{"1": {{ID: "keep", Pair: "doge_idr", Target: 1}}}))
	before := repo.raw(AlertsKey)

	repo.saveError = errors.New("no space left on device")
	err := store.Mutate(func(b models.AlertBook) (models.AlertBook, bool) {
		delete(b, "1")
		return b, true
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreIO)
	assert.Equal(t, before, repo.raw(AlertsKey))
	assert.Len(t, store.Read()["1"], 1)
}

func TestMutateDoesNotRunOnUnreadableStorage(t *testing.T) {
	repo := newMockRepository()
	repo.loadError = errors.New("permission denied")
	store := newAlertStore(repo)

	called := false
	err := store.Mutate(func(b models.AlertBook) (models.AlertBook, bool) {
		called = true
		return b, true
	})
	assert.ErrorIs(t, err, ErrStoreIO)
	assert.False(t, called)
	assert.Equal(t, 0, repo.saves)
}

func TestStoresOverFileRepository(t *testing.T) {
	repo, err := persistence.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	stores := NewStores(repo, zap.NewNop())

	require.NoError(t, stores.Orders.Mutate(func(b models.OrderBook) (models.OrderBook, bool) {
		b["9"] = append(b["9"], models.PendingOrder{OrderID: "123", Pair: "doge_idr", Status: models.OrderPending})
		return b, true
	}))
	require.NoError(t, stores.Stoplosses.Save(models.StoplossList{{ID: "s1", Pair: "btc_idr", StopPrice: 9000, Active: true}}))

	assert.Equal(t, models.OrderID("123"), stores.Orders.Read()["9"][0].OrderID)
	assert.True(t, stores.Stoplosses.Read()[0].Active)
	assert.Empty(t, stores.Alerts.Read())
}

func TestLegacyNumericOrderIDDecodes(t *testing.T) {
	repo := newMockRepository()
	repo.data[OrdersKey] = []byte(`{"9": [{"order_id": 123, "pair": "doge_idr", "price": 100, "amount": 2, "total": 200, "status": "pending"}]}`)
	book := NewStores(repo, zap.NewNop()).Orders.Read()
	require.Len(t, book["9"], 1)
	assert.Equal(t, models.OrderID("123"), book["9"][0].OrderID)
	assert.Equal(t, models.Buy, book["9"][0].OrderSide())
}
