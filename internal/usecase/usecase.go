package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrMaintenance      = errors.New("bot is under maintenance, please try again later")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidSide      = errors.New("invalid order side")
	ErrUnknownPair      = errors.New("unknown trading pair")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotPending  = errors.New("order is not pending")
	ErrStoplossNotFound = errors.New("stop-loss not found")
)

// Access gates mutating commands behind the maintenance switch. Owners bypass it.
type Access struct {
	maintenance bool
	owners      map[string]struct{}
}

func NewAccess(maintenance bool, owners []string) *Access {
	return &Access{
		maintenance: maintenance,
		owners: lo.SliceToMap(owners, func(id string) (string, struct{}) {
			return strings.TrimSpace(id), struct{}{}
		}),
	}
}

// Check returns ErrMaintenance for non-owners while maintenance is on.
func (a *Access) Check(userID string) error {
	if a == nil || !a.maintenance {
		return nil
	}
	if _, ok := a.owners[userID]; ok {
		return nil
	}
	return ErrMaintenance
}

// DefaultQuote is the quote asset appended to bare coin symbols.
const DefaultQuote = "idr"

// PairCatalogue is the set of tradable pairs quoted in one asset. An empty
// catalogue accepts every pair.
type PairCatalogue struct {
	quote string
	pairs map[string]struct{}
}

func NewPairCatalogue(quote string, symbols []string) *PairCatalogue {
	quote = strings.ToLower(strings.TrimSpace(quote))
	if quote == "" {
		quote = DefaultQuote
	}
	return &PairCatalogue{
		quote: quote,
		pairs: lo.SliceToMap(symbols, func(s string) (string, struct{}) {
			return strings.ToLower(strings.TrimSpace(s)), struct{}{}
		}),
	}
}

func (c *PairCatalogue) Contains(pair string) bool {
	if c == nil || len(c.pairs) == 0 {
		return true
	}
	_, ok := c.pairs[strings.ToLower(pair)]
	return ok
}

func (c *PairCatalogue) check(pair string) error {
	if !c.Contains(pair) {
		return fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	return nil
}

// Normalize maps a user symbol to a pair in the catalogue's quote asset.
func (c *PairCatalogue) Normalize(symbol string) string {
	if c == nil {
		return NormalizePair(symbol, DefaultQuote)
	}
	return NormalizePair(symbol, c.quote)
}

// NormalizePair turns "DOGE" into "doge_<quote>". Symbols that already name a
// full pair ("btc_usdt") are only lower-cased.
func NormalizePair(symbol, quote string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if strings.Contains(s, "_") {
		return s
	}
	return s + "_" + strings.ToLower(quote)
}

// newID returns a short random record id.
func newID() string {
	u := uuid.New()
	return base62.EncodeToString(u[:])
}

// parseChange parses an absolute price ("900000") or a signed percent ("+10%", "-5%").
// pct is nil for absolute values.
func parseChange(change string) (value decimal.Decimal, pct *float64, err error) {
	s := strings.TrimSpace(change)
	if strings.HasSuffix(s, "%") {
		d, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSuffix(s, "%"), "+"))
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("%w: percentage should look like +10%% or -5%%", ErrInvalidPrice)
		}
		p, _ := d.Float64()
		return d, &p, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("%w: use an absolute number like 900000 or a percentage like +10%%", ErrInvalidPrice)
	}
	return d, nil, nil
}

// applyPercent returns price * (1 + pct/100).
func applyPercent(price float64, pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100))))
}
