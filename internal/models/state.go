package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// AlertRecord is a single-shot "notify me when pair reaches target" intent.
type AlertRecord struct {
	ID        string     `json:"id,omitempty"`
	Pair      string     `json:"pair"`
	Target    float64    `json:"target"`
	Percent   *float64   `json:"percent"`              // originating percent, nil for absolute targets
	CreatedAt *time.Time `json:"created_at,omitempty"` // absent on records written by older versions
}

// Key identifies the alert within its owner's list.
// Records written before ids existed fall back to their content.
func (a AlertRecord) Key() string {
	if a.ID != "" {
		return a.ID
	}
	pct := "-"
	if a.Percent != nil {
		pct = strconv.FormatFloat(*a.Percent, 'f', -1, 64)
	}
	return fmt.Sprintf("%s|%s|%s", a.Pair, strconv.FormatFloat(a.Target, 'f', -1, 64), pct)
}

// OrderStatus 订单在本地的生命周期状态
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is allowed.
// Only pending orders move, and only forward.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderPending && (next == OrderCompleted || next == OrderCancelled)
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderID is the exchange-assigned order identifier. Exchanges hand it out
// as a number and the legacy store kept it that way, so both forms decode.
type OrderID string

func (id *OrderID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}

// PendingOrder tracks an order placed on the exchange until it fills or is cancelled.
type PendingOrder struct {
	OrderID OrderID     `json:"order_id"`
	Pair    string      `json:"pair"`
	Price   float64     `json:"price"`
	Amount  float64     `json:"amount"`
	Total   float64     `json:"total"`
	Status  OrderStatus `json:"status"`
	Side    Side        `json:"type,omitempty"` // buy orders were stored without a type
}

// Key identifies the order within its owner's list.
func (o PendingOrder) Key() string {
	return string(o.OrderID)
}

// OrderSide returns the order side, defaulting to buy.
func (o PendingOrder) OrderSide() Side {
	if o.Side == "" {
		return Buy
	}
	return o.Side
}

// StoplossRecord fires once when the price falls to or below StopPrice.
type StoplossRecord struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Coin      string  `json:"coin"`
	Pair      string  `json:"pair"`
	StopPrice float64 `json:"stop_price"`
	Percent   float64 `json:"percent"`
	Active    bool    `json:"active"`
}

// Key identifies the stop-loss in the flat list.
func (s StoplossRecord) Key() string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("%s|%s|%s", s.UserID, s.Pair, strconv.FormatFloat(s.StopPrice, 'f', -1, 64))
}

// AlertBook maps owner user id to that user's alerts in insertion order.
type AlertBook map[string][]AlertRecord

// OrderBook maps owner user id to that user's orders in insertion order.
type OrderBook map[string][]PendingOrder

// StoplossList is the flat stop-loss collection.
type StoplossList []StoplossRecord
