package monitor

import (
	"context"
	"fmt"
	"indodax-monitor-bot/internal/exchange"
	"indodax-monitor-bot/internal/models"
	"indodax-monitor-bot/internal/statemanager"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAlertTriggerScenario(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {{ID: "a1", Pair: "doge_idr", Target: 10000}},
	}))
	h.market.prices["doge_idr"] = 10500

	policy := NewAlertPolicy(h.market)
	assert.Equal(t, Trigger, policy.Decide(models.AlertRecord{Pair: "doge_idr", Target: 10000}, 10500))

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].userID)
	assert.Contains(t, sent[0].message, "doge_idr")
	assert.Contains(t, sent[0].message, "10500")
	assert.Equal(t, "🚨 `doge_idr` hit `10500` IDR (target `10000`)", sent[0].message)
	assert.Empty(t, h.stores.Alerts.Read()["42"])
}

func TestAlertBelowTargetIsKept(t *testing.T) {
	h := newHarness(t)
	book := models.AlertBook{"42": {{ID: "a1", Pair: "doge_idr", Target: 10000}}}
	require.NoError(t, h.stores.Alerts.Save(book))
	h.market.prices["doge_idr"] = 9999.99

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, book, h.stores.Alerts.Read())
}

func TestAlertTriggersExactlyAtTarget(t *testing.T) {
	p := NewAlertPolicy(nil)
	assert.Equal(t, Trigger, p.Decide(models.AlertRecord{Target: 0.3}, 0.1+0.2))
	assert.Equal(t, Keep, p.Decide(models.AlertRecord{Target: 0.3}, 0.29))
}

func TestAlertForUnknownPairIsRemovedSilently(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {
			{ID: "dead", Pair: "gone_idr", Target: 1},
			{ID: "live", Pair: "btc_idr", Target: 2e9},
		},
	}))
	h.market.errs["gone_idr"] = fmt.Errorf("%w: gone_idr", exchange.ErrPairNotFound)
	h.market.prices["btc_idr"] = 1e9

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	assert.Empty(t, h.notifier.messages())
	alerts := h.stores.Alerts.Read()["42"]
	require.Len(t, alerts, 1)
	assert.Equal(t, "live", alerts[0].ID)
}

func TestAlertFiresAtMostOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {{ID: "a1", Pair: "doge_idr", Target: 10000}},
	}))
	h.market.prices["doge_idr"] = 10500

	loop := h.alertLoop()
	for i := 0; i < 5; i++ {
		require.NoError(t, loop.Tick(context.Background()))
	}
	assert.Len(t, h.notifier.messages(), 1)
}

func TestErrorIsolation(t *testing.T) {
	h := newHarness(t)
	var alerts []models.AlertRecord
	for i := 1; i <= 5; i++ {
		pair := fmt.Sprintf("c%d_idr", i)
		alerts = append(alerts, models.AlertRecord{ID: fmt.Sprintf("a%d", i), Pair: pair, Target: 100})
		h.market.prices[pair] = 150
	}
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{"42": alerts}))
	h.market.errs["c3_idr"] = errUnavailable

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	for i := 1; i <= 5; i++ {
		assert.Equal(t, 1, h.market.callCount(fmt.Sprintf("c%d_idr", i)), "record %d evaluated", i)
	}
	assert.Len(t, h.notifier.messages(), 4)
	remaining := h.stores.Alerts.Read()["42"]
	require.Len(t, remaining, 1)
	assert.Equal(t, "a3", remaining[0].ID, "failed record is left for the next tick")
}

func TestPanickingRecordIsIsolated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {
			{ID: "bad", Pair: "boom_idr", Target: 1},
			{ID: "good", Pair: "doge_idr", Target: 1},
		},
	}))
	h.market.panics["boom_idr"] = true
	h.market.prices["doge_idr"] = 2

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	assert.Len(t, h.notifier.messages(), 1)
	remaining := h.stores.Alerts.Read()["42"]
	require.Len(t, remaining, 1)
	assert.Equal(t, "bad", remaining[0].ID)
}

func TestFetchesAreMemoisedPerTick(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"1": {{ID: "a", Pair: "doge_idr", Target: 1e6}, {ID: "b", Pair: "doge_idr", Target: 2e6}},
		"2": {{ID: "c", Pair: "doge_idr", Target: 3e6}},
	}))
	h.market.prices["doge_idr"] = 10

	loop := h.alertLoop()
	require.NoError(t, loop.Tick(context.Background()))
	assert.Equal(t, 1, h.market.callCount("doge_idr"))

	require.NoError(t, loop.Tick(context.Background()))
	assert.Equal(t, 2, h.market.callCount("doge_idr"), "memo does not outlive the tick")
}

func TestFailedCommitDoesNotNotify(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {{ID: "a1", Pair: "doge_idr", Target: 10000}},
	}))
	h.market.prices["doge_idr"] = 10500
	loop := h.alertLoop()

	h.repo.setFailSave(true)
	err := loop.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, statemanager.ErrStoreIO)
	assert.Empty(t, h.notifier.messages())
	assert.Len(t, h.stores.Alerts.Read()["42"], 1, "previous content intact")

	h.repo.setFailSave(false)
	require.NoError(t, loop.Tick(context.Background()))
	assert.Len(t, h.notifier.messages(), 1)
	assert.Empty(t, h.stores.Alerts.Read()["42"])
}

func TestDeliveryFailureStillCommits(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"blocked": {{ID: "a1", Pair: "doge_idr", Target: 1}},
		"ok":      {{ID: "a2", Pair: "doge_idr", Target: 1}},
	}))
	h.market.prices["doge_idr"] = 5
	h.notifier.fail["blocked"] = true

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	assert.Len(t, h.notifier.messages(), 1)
	assert.Empty(t, h.stores.Alerts.Read())
}

func TestConcurrentChangesArePreserved(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {
			{ID: "fires", Pair: "doge_idr", Target: 1},
			{ID: "deleted", Pair: "btc_idr", Target: 1},
		},
	}))
	h.market.prices["doge_idr"] = 5
	h.market.prices["btc_idr"] = 5

	// While the tick is fetching, a user adds one alert and deletes another.
	done := false
	h.market.onFetch = func(string) {
		if done {
			return
		}
		done = true
		require.NoError(t, h.stores.Alerts.Mutate(func(b models.AlertBook) (models.AlertBook, bool) {
			kept := b["42"][:0]
			for _, a := range b["42"] {
				if a.ID != "deleted" {
					kept = append(kept, a)
				}
			}
			b["42"] = append(kept, models.AlertRecord{ID: "new", Pair: "eth_idr", Target: 1})
			b["7"] = []models.AlertRecord{{ID: "other", Pair: "eth_idr", Target: 1}}
			return b, true
		}))
	}

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	sent := h.notifier.messages()
	require.Len(t, sent, 1, "a record removed by the user is not notified")
	assert.Contains(t, sent[0].message, "doge_idr")

	book := h.stores.Alerts.Read()
	require.Len(t, book["42"], 1)
	assert.Equal(t, "new", book["42"][0].ID)
	require.Len(t, book["7"], 1)
}

func TestCancelledTickCommitsNothing(t *testing.T) {
	h := newHarness(t)
	book := models.AlertBook{"42": {{ID: "a1", Pair: "doge_idr", Target: 1}, {ID: "a2", Pair: "btc_idr", Target: 1}}}
	require.NoError(t, h.stores.Alerts.Save(book))
	h.market.prices["doge_idr"] = 5
	h.market.prices["btc_idr"] = 5

	ctx, cancel := context.WithCancel(context.Background())
	h.market.onFetch = func(string) { cancel() }

	err := h.alertLoop().Tick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, book, h.stores.Alerts.Read())
}

func TestNotificationsFollowStableOrder(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"b": {{ID: "b1", Pair: "x_idr", Target: 1}, {ID: "b2", Pair: "y_idr", Target: 1}},
		"a": {{ID: "a1", Pair: "y_idr", Target: 1}},
		"c": {{ID: "c1", Pair: "x_idr", Target: 1}},
	}))
	h.market.prices["x_idr"] = 2
	h.market.prices["y_idr"] = 2

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	var got []string
	for _, m := range h.notifier.messages() {
		got = append(got, m.userID)
	}
	assert.Equal(t, []string{"a", "b", "b", "c"}, got)
}

func TestLegacyAlertsWithoutIDs(t *testing.T) {
	h := newHarness(t)
	pct := 10.0
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"42": {
			{Pair: "doge_idr", Target: 10000},
			{Pair: "doge_idr", Target: 20000, Percent: &pct},
		},
	}))
	h.market.prices["doge_idr"] = 15000

	require.NoError(t, h.alertLoop().Tick(context.Background()))

	assert.Len(t, h.notifier.messages(), 1)
	remaining := h.stores.Alerts.Read()["42"]
	require.Len(t, remaining, 1)
	assert.Equal(t, 20000.0, remaining[0].Target)
}

func TestOrderNotYetFilledScenario(t *testing.T) {
	h := newHarness(t)
	order := models.PendingOrder{OrderID: "123", Pair: "doge_idr", Price: 1000, Amount: 1, Total: 1000, Status: models.OrderPending}
	require.NoError(t, h.stores.Orders.Save(models.OrderBook{"42": {order}}))
	h.market.ledgers["doge_idr"] = []exchange.LedgerEntry{{OrderID: "123", Remaining: 0.5}}

	policy := NewOrderFillPolicy(h.market, 20)
	assert.Equal(t, Keep, policy.Decide(order, h.market.ledgers["doge_idr"]))

	require.NoError(t, h.orderLoop().Tick(context.Background()))

	assert.Empty(t, h.notifier.messages())
	assert.Equal(t, models.OrderPending, h.stores.Orders.Read()["42"][0].Status)
}

func TestOrderFilledIsCompletedAndRetained(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Orders.Save(models.OrderBook{"42": {
		{OrderID: "123", Pair: "doge_idr", Price: 1000, Amount: 20, Total: 20000, Status: models.OrderPending},
		{OrderID: "124", Pair: "doge_idr", Price: 1100, Amount: 5, Total: 5500, Status: models.OrderPending, Side: models.Sell},
		{OrderID: "999", Pair: "doge_idr", Price: 900, Amount: 5, Total: 4500, Status: models.OrderPending},
	}}))
	h.market.ledgers["doge_idr"] = []exchange.LedgerEntry{
		{OrderID: "124", Remaining: 0},
		{OrderID: "123", Remaining: 0},
	}

	loop := h.orderLoop()
	require.NoError(t, loop.Tick(context.Background()))

	assert.Equal(t, 1, h.market.ledgerN["doge_idr"], "one ledger call per pair")
	sent := h.notifier.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].message, "#123")
	assert.Contains(t, sent[1].message, "sell order #124")

	orders := h.stores.Orders.Read()["42"]
	require.Len(t, orders, 3)
	assert.Equal(t, models.OrderCompleted, orders[0].Status)
	assert.Equal(t, models.OrderCompleted, orders[1].Status)
	assert.Equal(t, models.OrderPending, orders[2].Status, "order outside the window stays pending")

	require.NoError(t, loop.Tick(context.Background()))
	assert.Len(t, h.notifier.messages(), 2, "completed orders are not evaluated again")
}

func TestCancelledOrdersAreNotEvaluated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Orders.Save(models.OrderBook{"42": {
		{OrderID: "5", Pair: "btc_idr", Status: models.OrderCancelled},
	}}))

	require.NoError(t, h.orderLoop().Tick(context.Background()))
	assert.Equal(t, 0, h.market.ledgerN["btc_idr"])
}

func TestStoplossFiresScenario(t *testing.T) {
	h := newHarness(t)
	rec := models.StoplossRecord{ID: "s1", UserID: "42", Coin: "btc", Pair: "btc_idr", StopPrice: 9000, Active: true}
	require.NoError(t, h.stores.Stoplosses.Save(models.StoplossList{rec}))
	h.market.prices["btc_idr"] = 8900

	assert.Equal(t, Trigger, NewStoplossPolicy(h.market).Decide(rec, 8900))

	loop := h.stoplossLoop()
	require.NoError(t, loop.Tick(context.Background()))

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "42", sent[0].userID)
	assert.Contains(t, sent[0].message, "8900")
	assert.Contains(t, sent[0].message, "9000")

	list := h.stores.Stoplosses.Read()
	require.Len(t, list, 1, "record retained")
	assert.False(t, list[0].Active)
	assert.Equal(t, "s1", list[0].ID)

	require.NoError(t, loop.Tick(context.Background()))
	assert.Len(t, h.notifier.messages(), 1)
	assert.Equal(t, 1, h.market.callCount("btc_idr"), "inactive stop-loss is skipped")
}

func TestStoplossAboveStopIsKept(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Stoplosses.Save(models.StoplossList{
		{ID: "s1", UserID: "42", Pair: "btc_idr", StopPrice: 9000, Active: true},
	}))
	h.market.prices["btc_idr"] = 9100

	require.NoError(t, h.stoplossLoop().Tick(context.Background()))
	assert.Empty(t, h.notifier.messages())
	assert.True(t, h.stores.Stoplosses.Read()[0].Active)
}

func TestStoplossUnknownPairIsRetained(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Stoplosses.Save(models.StoplossList{
		{ID: "s1", UserID: "42", Pair: "gone_idr", StopPrice: 9000, Active: true},
	}))
	h.market.errs["gone_idr"] = exchange.ErrPairNotFound

	require.NoError(t, h.stoplossLoop().Tick(context.Background()))
	list := h.stores.Stoplosses.Read()
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)
}

func TestOrderStatusNeverMovesBackward(t *testing.T) {
	p := NewOrderFillPolicy(nil, 0)
	done := models.PendingOrder{OrderID: "1", Status: models.OrderCancelled}
	assert.Equal(t, Keep, p.Decide(done, []exchange.LedgerEntry{{OrderID: "1", Remaining: 0}}))
	applied, keep := p.Apply(done)
	assert.True(t, keep)
	assert.Equal(t, models.OrderCancelled, applied.Status)
}

func TestTickDeadlineCommitsGatheredDecisions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"1": {{ID: "fires", Pair: "doge_idr", Target: 10000}},
		"2": {{ID: "slow", Pair: "aaa_idr", Target: 1}},
		"3": {{ID: "late", Pair: "btc_idr", Target: 1}},
	}))
	h.market.prices["doge_idr"] = 10500
	h.market.prices["btc_idr"] = 5
	h.market.hangs["aaa_idr"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := h.alertLoop().Tick(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "1", sent[0].userID)
	book := h.stores.Alerts.Read()
	assert.Empty(t, book["1"])
	assert.Len(t, book["2"], 1)
	assert.Len(t, book["3"], 1)
	assert.Zero(t, h.market.callCount("btc_idr"))
}

func TestHungFetchDoesNotStarveLaterRecords(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.stores.Alerts.Save(models.AlertBook{
		"1": {{ID: "slow", Pair: "aaa_idr", Target: 1}},
		"2": {{ID: "fires", Pair: "doge_idr", Target: 10000}},
	}))
	h.market.hangs["aaa_idr"] = true
	h.market.prices["doge_idr"] = 10500

	s := NewSupervisor([]Runner{h.alertLoop().WithRecordTimeout(20 * time.Millisecond)},
		200*time.Millisecond, nil, zap.NewNop())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return len(h.notifier.messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	book := h.stores.Alerts.Read()
	assert.Empty(t, book["2"])
	assert.Len(t, book["1"], 1)
	assert.Equal(t, "2", h.notifier.messages()[0].userID)
}
