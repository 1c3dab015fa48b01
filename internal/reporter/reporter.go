package reporter

import (
	"fmt"
	"indodax-monitor-bot/internal/models"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

// Snapshot 存储某一时刻三个集合的内容
type Snapshot struct {
	Alerts     models.AlertBook
	Orders     models.OrderBook
	Stoplosses models.StoplossList
}

// PrintSnapshot 以表格形式打印告警、订单和止损
func PrintSnapshot(w io.Writer, s Snapshot) {
	fmt.Fprintln(w, "========== 监控状态报告 ==========")
	fmt.Fprintf(w, "告警: %d  订单: %d (待成交 %d)  止损: %d (生效 %d)\n",
		countAlerts(s.Alerts), countOrders(s.Orders), countPending(s.Orders),
		len(s.Stoplosses), lo.CountBy(s.Stoplosses, func(r models.StoplossRecord) bool { return r.Active }))

	renderAlerts(w, s.Alerts)
	renderOrders(w, s.Orders)
	renderStoplosses(w, s.Stoplosses)
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

func renderAlerts(w io.Writer, book models.AlertBook) {
	t := newTable(w, "Alerts")
	t.AppendHeader(table.Row{"User", "#", "Pair", "Target", "Percent", "Created"})
	for _, user := range sortedOwners(book) {
		for i, a := range book[user] {
			created := "-"
			if a.CreatedAt != nil {
				created = a.CreatedAt.Format("2006-01-02 15:04")
			}
			t.AppendRow(table.Row{user, i + 1, a.Pair, formatNumber(a.Target), formatPercent(a.Percent), created})
		}
	}
	t.Render()
}

func renderOrders(w io.Writer, book models.OrderBook) {
	t := newTable(w, "Orders")
	t.AppendHeader(table.Row{"User", "Order ID", "Side", "Pair", "Price", "Amount", "Total", "Status"})
	for _, user := range sortedOwners(book) {
		for _, o := range book[user] {
			t.AppendRow(table.Row{user, o.OrderID, o.OrderSide(), o.Pair,
				formatNumber(o.Price), formatNumber(o.Amount), formatNumber(o.Total), o.Status})
		}
	}
	t.Render()
}

func renderStoplosses(w io.Writer, list models.StoplossList) {
	t := newTable(w, "Stop-losses")
	t.AppendHeader(table.Row{"User", "ID", "Pair", "Stop", "Percent", "Active"})
	for _, s := range list {
		pct := "-"
		if s.Percent != 0 {
			pct = formatNumber(s.Percent) + "%"
		}
		t.AppendRow(table.Row{s.UserID, s.ID, s.Pair, formatNumber(s.StopPrice), pct, s.Active})
	}
	t.Render()
}

func sortedOwners[V any](m map[string]V) []string {
	owners := make([]string, 0, len(m))
	for owner := range m {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

func countAlerts(book models.AlertBook) int {
	return lo.SumBy(lo.Values(book), func(a []models.AlertRecord) int { return len(a) })
}

func countOrders(book models.OrderBook) int {
	return lo.SumBy(lo.Values(book), func(o []models.PendingOrder) int { return len(o) })
}

func countPending(book models.OrderBook) int {
	return lo.SumBy(lo.Values(book), func(orders []models.PendingOrder) int {
		return lo.CountBy(orders, func(o models.PendingOrder) bool { return o.Status == models.OrderPending })
	})
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%+g%%", *p)
}
