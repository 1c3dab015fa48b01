package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"indodax-monitor-bot/internal/models"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IndodaxExchange talks to the Indodax public API and the private TAPI.
type IndodaxExchange struct {
	baseURL       string
	apiKey        string
	secretKey     string
	minOrderTotal decimal.Decimal
	http          *HTTPClient
	logger        *zap.Logger
	timeOffset    atomic.Int64 // 毫秒, 服务器时间 - 本地时间
}

// NewIndodaxExchange 创建一个新的 IndodaxExchange 实例
func NewIndodaxExchange(cfg models.ExchangeConfig, logger *zap.Logger) *IndodaxExchange {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://indodax.com"
	}
	return &IndodaxExchange{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		secretKey:     cfg.SecretKey,
		minOrderTotal: decimal.NewFromInt(int64(cfg.MinOrderTotal)),
		http: NewHTTPClient(HTTPOptions{
			Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
			RequestsPerSec: float64(cfg.RequestsPerSec),
			RetryAttempts:  cfg.RetryAttempts,
			RetryInitial:   time.Duration(cfg.RetryInitialMs) * time.Millisecond,
		}),
		logger: logger.With(zap.String("exchange", "indodax")),
	}
}

// flexNumber decodes numbers that Indodax sends either as JSON numbers or strings.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = flexNumber(s)
		return nil
	}
	*n = flexNumber(data)
	return nil
}

func (n flexNumber) decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(string(n)))
}

type tickerResponse struct {
	Ticker *struct {
		Last flexNumber `json:"last"`
	} `json:"ticker"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// tickerPath converts "doge_idr" into the ticker id "dogeidr".
func tickerPath(pair string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(pair)), "_", "")
}

// GetLastPrice returns the last traded price of pair.
func (e *IndodaxExchange) GetLastPrice(ctx context.Context, pair string) (float64, error) {
	endpoint := e.baseURL + "/api/ticker/" + url.PathEscape(tickerPath(pair))
	body, err := e.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("%w: %s", ErrPairNotFound, pair)
		}
		return 0, fmt.Errorf("ticker %s: %w", pair, err)
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("ticker %s: invalid response: %w", pair, err)
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("%w: %s: %s", ErrPairNotFound, pair, resp.ErrorDescription)
	}
	if resp.Ticker == nil || resp.Ticker.Last == "" {
		// 没有 last 字段的行情视为交易对不存在
		return 0, fmt.Errorf("%w: %s: no last price in ticker", ErrPairNotFound, pair)
	}
	last, err := resp.Ticker.Last.decimal()
	if err != nil {
		return 0, fmt.Errorf("ticker %s: invalid last price %q: %w", pair, resp.Ticker.Last, err)
	}
	price, _ := last.Float64()
	return price, nil
}

// SyncTime 与Indodax服务器同步时间, 计算时间偏移
func (e *IndodaxExchange) SyncTime(ctx context.Context) error {
	body, err := e.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/server_time", nil)
	})
	if err != nil {
		return fmt.Errorf("server time: %w", err)
	}
	var resp struct {
		ServerTime int64 `json:"server_time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ServerTime == 0 {
		return fmt.Errorf("server time: invalid response %s", string(body))
	}
	offset := resp.ServerTime - time.Now().UnixMilli()
	e.timeOffset.Store(offset)
	e.logger.Info("与Indodax服务器时间同步完成", zap.Int64("timeOffset (ms)", offset))
	return nil
}

func (e *IndodaxExchange) sign(payload string) string {
	mac := hmac.New(sha512.New, []byte(e.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

type tapiResponse struct {
	Success   int             `json:"success"`
	Return    json.RawMessage `json:"return"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
}

// tapi posts a signed private API call and returns its "return" payload.
func (e *IndodaxExchange) tapi(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	if e.apiKey == "" || e.secretKey == "" {
		return nil, fmt.Errorf("indodax %s: missing API credentials", method)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("method", method)

	body, err := e.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		// 每次重试都重新生成时间戳和签名
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli()+e.timeOffset.Load(), 10))
		payload := params.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/tapi", strings.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Key", e.apiKey)
		req.Header.Set("Sign", e.sign(payload))
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("indodax %s: %w", method, err)
	}

	var resp tapiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("indodax %s: invalid response: %w", method, err)
	}
	if resp.Success != 1 {
		if resp.ErrorCode == "invalid_pair" || strings.Contains(strings.ToLower(resp.Error), "invalid pair") {
			return nil, fmt.Errorf("%w: %s", ErrPairNotFound, params.Get("pair"))
		}
		msg := resp.Error
		if msg == "" {
			msg = "unknown TAPI error"
		}
		return nil, fmt.Errorf("indodax %s: %s", method, msg)
	}
	return resp.Return, nil
}

// GetRecentOrders returns the latest limit orders of pair from orderHistory.
// An order's remaining quantity is taken from its remain_* fields.
func (e *IndodaxExchange) GetRecentOrders(ctx context.Context, pair string, limit int) ([]LedgerEntry, error) {
	params := url.Values{}
	params.Set("pair", strings.ToLower(pair))
	params.Set("count", strconv.Itoa(limit))

	ret, err := e.tapi(ctx, "orderHistory", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Orders []map[string]json.RawMessage `json:"orders"`
	}
	if err := json.Unmarshal(ret, &payload); err != nil {
		return nil, fmt.Errorf("orderHistory %s: invalid payload: %w", pair, err)
	}

	entries := make([]LedgerEntry, 0, len(payload.Orders))
	for _, raw := range payload.Orders {
		entry, err := parseLedgerEntry(raw)
		if err != nil {
			e.logger.Warn("跳过无法解析的订单记录", zap.String("pair", pair), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

func parseLedgerEntry(raw map[string]json.RawMessage) (LedgerEntry, error) {
	var id flexNumber
	idRaw, ok := raw["order_id"]
	if !ok {
		return LedgerEntry{}, errors.New("missing order_id")
	}
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return LedgerEntry{}, fmt.Errorf("order_id: %w", err)
	}

	remaining := decimal.Zero
	found := false
	for k, v := range raw {
		if !strings.HasPrefix(k, "remain_") {
			continue
		}
		var n flexNumber
		if err := json.Unmarshal(v, &n); err != nil {
			return LedgerEntry{}, fmt.Errorf("%s: %w", k, err)
		}
		d, err := n.decimal()
		if err != nil {
			return LedgerEntry{}, fmt.Errorf("%s: %w", k, err)
		}
		found = true
		if d.GreaterThan(remaining) {
			remaining = d
		}
	}
	if !found {
		return LedgerEntry{}, fmt.Errorf("order %s has no remain field", id)
	}
	r, _ := remaining.Float64()
	return LedgerEntry{OrderID: string(id), Remaining: r}, nil
}

// PlaceOrder submits a limit order. Buys are funded in IDR and must meet the minimum total.
func (e *IndodaxExchange) PlaceOrder(ctx context.Context, pair string, side models.Side, price, amount float64) (string, error) {
	pair = strings.ToLower(pair)
	p := decimal.NewFromFloat(price)
	a := decimal.NewFromFloat(amount)

	params := url.Values{}
	params.Set("pair", pair)
	params.Set("type", string(side))
	params.Set("price", p.String())

	switch side {
	case models.Buy:
		total := p.Mul(a)
		if total.LessThan(e.minOrderTotal) {
			return "", fmt.Errorf("%w: %s IDR < %s IDR", ErrBelowMinimum, total.String(), e.minOrderTotal.String())
		}
		params.Set("idr", total.Round(0).String())
	case models.Sell:
		coin, _, _ := strings.Cut(pair, "_")
		params.Set(coin, a.String())
	default:
		return "", fmt.Errorf("unknown order side %q", side)
	}

	ret, err := e.tapi(ctx, "trade", params)
	if err != nil {
		return "", err
	}
	var payload struct {
		OrderID flexNumber `json:"order_id"`
	}
	if err := json.Unmarshal(ret, &payload); err != nil || payload.OrderID == "" {
		return "", fmt.Errorf("trade %s: response has no order_id", pair)
	}
	e.logger.Info("下单成功", zap.String("pair", pair), zap.String("side", string(side)), zap.String("orderID", string(payload.OrderID)))
	return string(payload.OrderID), nil
}

// CancelOrder cancels an open order.
func (e *IndodaxExchange) CancelOrder(ctx context.Context, pair, orderID string, side models.Side) error {
	params := url.Values{}
	params.Set("pair", strings.ToLower(pair))
	params.Set("order_id", orderID)
	params.Set("type", string(side))
	_, err := e.tapi(ctx, "cancelOrder", params)
	return err
}

// Balances returns the available balance of every asset from getInfo.
func (e *IndodaxExchange) Balances(ctx context.Context) (map[string]float64, error) {
	ret, err := e.tapi(ctx, "getInfo", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Balance map[string]flexNumber `json:"balance"`
	}
	if err := json.Unmarshal(ret, &payload); err != nil {
		return nil, fmt.Errorf("getInfo: invalid payload: %w", err)
	}

	balances := make(map[string]float64, len(payload.Balance))
	for asset, raw := range payload.Balance {
		d, err := raw.decimal()
		if err != nil {
			e.logger.Warn("跳过无法解析的余额", zap.String("asset", asset), zap.Error(err))
			continue
		}
		balances[strings.ToLower(asset)], _ = d.Float64()
	}
	return balances, nil
}
