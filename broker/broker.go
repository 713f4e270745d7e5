// Package broker describes the trading venue the controller talks to and
// wraps any implementation with bounded timeouts, read retries and a
// per-instrument submission rate limit.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

// Broker is the venue capability. Tick returns ErrNoTick when the venue has
// no quote; SubmitOrder returns a *RejectError when the venue refuses the
// order. Transport failures and timeouts wrap ErrVenueUnavailable.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Tick(ctx context.Context, instrument string) (market.Tick, error)
	SymbolMeta(ctx context.Context, instrument string) (market.SymbolMeta, error)
	EnsureVisible(ctx context.Context, instrument string) error
	RecentCloses(ctx context.Context, instrument string, count int) ([]float64, error)

	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	OpenPositionCount(ctx context.Context) (int, error)
	AccountBalance(ctx context.Context) (float64, error)
	ClosedDeals(ctx context.Context, from, to time.Time) ([]RawDeal, error)
}

type OrderRequest struct {
	Instrument  string
	Direction   market.Direction
	Lots        float64
	StopPrice   float64
	TargetPrice float64
	Deviation   int // max slippage in points
	Tag         string
}

type OrderResult struct {
	OrderID string
	Price   float64
	Time    time.Time
}

// DealType is the venue's numeric deal type.
type DealType int

const (
	DealTypeBuy  DealType = 0
	DealTypeSell DealType = 1
)

type RawDeal struct {
	Ticket     string
	Instrument string
	Type       DealType
	Volume     float64
	Profit     float64
	Time       time.Time
}

// Direction maps the deal type constant. Balance, credit and every other
// type the venue may report are rejected rather than guessed.
func (d RawDeal) Direction() (market.Direction, error) {
	switch d.Type {
	case DealTypeBuy:
		return market.Long, nil
	case DealTypeSell:
		return market.Short, nil
	default:
		return market.NoDirection, fmt.Errorf("%w: deal %s type %d", ErrUnknownDealDirection, d.Ticket, int(d.Type))
	}
}
