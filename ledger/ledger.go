// Package ledger keeps the per-day trade counter and realized pnl that the
// daily loss breaker reads. Every operation reads the stored entry first and
// rolls it to a fresh day before doing anything else, so several Ledgers on
// the same storage see each other's writes.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DateLayout = "2006-01-02"

type Entry struct {
	Date          string  `json:"date"`
	TradeCount    int     `json:"trade_count"`
	CumulativePnL float64 `json:"cumulative_pnl"`
}

// Store persists the current entry. LoadLedger reports ok=false when nothing
// has been saved yet.
type Store interface {
	LoadLedger(ctx context.Context) (e Entry, ok bool, err error)
	SaveLedger(ctx context.Context, e Entry) error
}

// AtomicStore is a Store that updates the entry in place. Writers on other
// handles to the same storage are never lost between a read and a write.
type AtomicStore interface {
	Store
	// RollLedger makes date current, zeroing the entry only if it holds
	// another day.
	RollLedger(ctx context.Context, date string) (Entry, error)
	// AddTrade counts one trade on date and adds pnlDelta. An entry for
	// another day is replaced.
	AddTrade(ctx context.Context, date string, pnlDelta float64) (Entry, error)
}

type Ledger struct {
	mu     sync.Mutex
	store  Store
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Ledger)

// WithLocation sets the timezone that decides where one trading day ends.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "ledger"))
	return l
}

// Today is the ledger's notion of the current date.
func (l *Ledger) Today() string {
	return l.now().In(l.loc).Format(DateLayout)
}

// CurrentOrRolled returns today's entry. A stale entry is replaced by a
// zeroed one and the replacement is persisted before returning.
func (l *Ledger) CurrentOrRolled(ctx context.Context) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rollLocked(ctx)
}

// RecordTrade rolls, counts one trade and adds pnlDelta. Nothing changes
// unless the store accepts the new entry.
func (l *Ledger) RecordTrade(ctx context.Context, pnlDelta float64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, err := l.rollLocked(ctx)
	if err != nil {
		return Entry{}, err
	}
	if as, ok := l.store.(AtomicStore); ok {
		next, err := as.AddTrade(ctx, cur.Date, pnlDelta)
		if err != nil {
			return cur, fmt.Errorf("ledger: save %s: %w", cur.Date, err)
		}
		return next, nil
	}
	next := Entry{
		Date:          cur.Date,
		TradeCount:    cur.TradeCount + 1,
		CumulativePnL: cur.CumulativePnL + pnlDelta,
	}
	if err := l.store.SaveLedger(ctx, next); err != nil {
		return cur, fmt.Errorf("ledger: save %s: %w", next.Date, err)
	}
	return next, nil
}

// DailyLossBreached reports whether today's realized pnl is below
// -maxLossFraction*balance.
func (l *Ledger) DailyLossBreached(ctx context.Context, balance, maxLossFraction float64) (bool, error) {
	e, err := l.CurrentOrRolled(ctx)
	if err != nil {
		return false, err
	}
	return e.LossBreached(balance, maxLossFraction), nil
}

func (e Entry) LossBreached(balance, maxLossFraction float64) bool {
	return e.CumulativePnL < -maxLossFraction*balance
}

// LossUsed is the share of the daily loss limit consumed so far, 0 when the
// day is flat or up.
func (e Entry) LossUsed(balance, maxLossFraction float64) float64 {
	limit := maxLossFraction * balance
	if e.CumulativePnL >= 0 || limit <= 0 {
		return 0
	}
	return -e.CumulativePnL / limit
}

func (l *Ledger) rollLocked(ctx context.Context) (Entry, error) {
	prev, _, err := l.store.LoadLedger(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: load: %w", err)
	}

	today := l.Today()
	if prev.Date == today {
		return prev, nil
	}

	rolled := Entry{Date: today}
	if as, ok := l.store.(AtomicStore); ok {
		rolled, err = as.RollLedger(ctx, today)
	} else {
		err = l.store.SaveLedger(ctx, rolled)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: roll to %s: %w", today, err)
	}
	if prev.Date != "" {
		l.logger.InfoContext(ctx, "ledger rolled",
			slog.String("from", prev.Date),
			slog.String("to", today),
			slog.Int("trades", prev.TradeCount),
			slog.Float64("pnl", prev.CumulativePnL),
		)
	}
	return rolled, nil
}
