package usecase

import (
	"context"
	"indodax-monitor-bot/internal/exchange"
	"sort"
	"strings"
)

// Balance is one asset holding on the exchange account.
type Balance struct {
	Asset  string
	Amount float64
}

type AccountUsecase struct {
	wallet exchange.Wallet
	access *Access
}

func NewAccountUsecase(wallet exchange.Wallet, access *Access) *AccountUsecase {
	return &AccountUsecase{wallet: wallet, access: access}
}

// Balances returns the non-zero holdings sorted by asset.
func (u *AccountUsecase) Balances(ctx context.Context, userID string) ([]Balance, error) {
	if err := u.access.Check(userID); err != nil {
		return nil, err
	}
	raw, err := u.wallet.Balances(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(raw))
	for asset, amount := range raw {
		if amount > 0 {
			out = append(out, Balance{Asset: asset, Amount: amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// Balance returns the holding of one coin, zero when the account has none.
func (u *AccountUsecase) Balance(ctx context.Context, userID, coin string) (float64, error) {
	if err := u.access.Check(userID); err != nil {
		return 0, err
	}
	raw, err := u.wallet.Balances(ctx)
	if err != nil {
		return 0, err
	}
	return raw[strings.ToLower(strings.TrimSpace(coin))], nil
}
