package market

import (
	"context"
)

type TickSource interface {
	Tick(ctx context.Context, instrument string) (Tick, error)
}

// QuoteToAccountRate returns the value of one unit of quote currency in
// account currency. It tries QUOTE+ACCOUNT and then the inverse
// ACCOUNT+QUOTE. ok is false when neither pair has a usable quote; the caller
// decides how to degrade.
func QuoteToAccountRate(ctx context.Context, quote, account string, prices TickSource) (rate float64, ok bool) {
	if quote == account {
		return 1.0, true
	}
	if prices == nil {
		return 0, false
	}

	if t, err := prices.Tick(ctx, quote+account); err == nil && t.Mid() > 0 {
		return t.Mid(), true
	}
	// USDJPY mid gives JPY per USD, we want USD per JPY
	if t, err := prices.Tick(ctx, account+quote); err == nil && t.Mid() > 0 {
		return 1.0 / t.Mid(), true
	}
	return 0, false
}
