// Package journal is the append-only trade log. Rows are written once per
// order submission and once per reconciled closed deal and are never
// updated afterwards.
package journal

import (
	"context"
	"time"

	"github.com/rustyeddy/autotrader/market"
)

type Kind string

const (
	KindOpen   Kind = "open"
	KindClosed Kind = "closed"
)

// TradeLogRow is one line of trade history. Pointer fields are unknown when
// nil: closed-deal rows carry no stop/target and no balance.
type TradeLogRow struct {
	ID              string
	Time            time.Time
	Instrument      string
	Direction       market.Direction
	Lots            float64
	StopPips        *float64
	TargetPips      *float64
	RealizedPnL     float64
	Balance         *float64
	DailyTradeCount int
	DealID          string
	Kind            Kind
	Reason          string
}

type Journal interface {
	AppendTrade(ctx context.Context, row TradeLogRow) error
	Close() error
}

// Querier reads rows back for the journal command.
type Querier interface {
	ListBetween(ctx context.Context, start, end time.Time) ([]TradeLogRow, error)
	Recent(ctx context.Context, n int) ([]TradeLogRow, error)
}

// Float is a convenience for the optional fields.
func Float(v float64) *float64 {
	return &v
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
