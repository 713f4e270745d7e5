// Package controller runs the trading scan loop: a daily loss check, then a
// gated pass over every configured instrument that may submit a few layered
// orders, then a wait until the next scan.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/news"
	"github.com/rustyeddy/autotrader/notify"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/strategies"
)

type Config struct {
	Instruments []string
	Locks       map[string]float64 // instrument -> minimum balance

	ScanInterval    time.Duration
	LossCooldown    time.Duration
	LayerDelay      time.Duration
	InstrumentDelay time.Duration
	OrderTimeout    time.Duration

	MaxSpreadPips float64
	MaxOpenTrades int
	MaxLayers     int
	Deviation     int
	PriceWindow   int

	StopFloorPips float64
	ATRMultiplier float64
	RewardRisk    float64

	AccountCurrency  string
	MinLot           float64
	MaxLot           float64
	MaxDailyLossPct  float64
	LossWarningRatio float64
}

// Ledger is the part of *ledger.Ledger the controller uses.
type Ledger interface {
	CurrentOrRolled(ctx context.Context) (ledger.Entry, error)
	RecordTrade(ctx context.Context, pnlDelta float64) (ledger.Entry, error)
	DailyLossBreached(ctx context.Context, balance, maxLossFraction float64) (bool, error)
}

type Controller struct {
	cfg     Config
	venue   broker.Broker
	ledger  Ledger
	journal journal.Journal

	signals  strategies.Source
	rules    strategies.Rules
	selector risk.Selector
	sizer    *risk.Sizer
	news     news.Guard
	alerts   notify.Alerter
	logger   *slog.Logger

	quotes *quoteCache
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	// days on which the breaker and the warning were already announced
	breakerDay string
	warnedDay  string
}

type Option func(*Controller)

func WithSignals(src strategies.Source, rules strategies.Rules) Option {
	return func(c *Controller) {
		if src != nil {
			c.signals = src
		}
		c.rules = rules
	}
}

func WithSelector(s risk.Selector) Option {
	return func(c *Controller) { c.selector = s }
}

func WithNews(g news.Guard) Option {
	return func(c *Controller) {
		if g != nil {
			c.news = g
		}
	}
}

func WithAlerter(a notify.Alerter) Option {
	return func(c *Controller) { c.alerts = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleep replaces the wait used for scan, cooldown and delay pauses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func New(cfg Config, venue broker.Broker, l Ledger, j journal.Journal, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		venue:    venue,
		ledger:   l,
		journal:  j,
		signals:  strategies.NewIndicatorSource(strategies.IndicatorConfigDefaults()),
		rules:    strategies.RulesDefaults(),
		selector: risk.SelectorDefaults(),
		news:     news.NoBlackout{},
		logger:   slog.Default(),
		quotes:   newQuoteCache(venue),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "controller"))
	c.sizer = risk.NewSizer(cfg.MinLot, cfg.MaxLot,
		risk.NewPipValuer(cfg.AccountCurrency, c.quotes, c.logger))
	return c
}

// Run scans until ctx is cancelled. A tripped breaker waits LossCooldown
// instead of ScanInterval and is checked again afterwards.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "controller started",
		slog.Any("instruments", c.cfg.Instruments),
		slog.Duration("scan_interval", c.cfg.ScanInterval),
	)
	for {
		wait := c.cfg.ScanInterval
		rep, err := c.Cycle(ctx)
		switch {
		case ctx.Err() != nil:
			c.logger.InfoContext(ctx, "controller stopped")
			return nil
		case err != nil:
			c.logger.WarnContext(ctx, "scan cycle aborted", slog.String("error", err.Error()))
		case rep.Breached:
			wait = c.cfg.LossCooldown
		default:
			c.logger.DebugContext(ctx, "scan cycle done",
				slog.Int("submitted", rep.Submitted),
				slog.Int("rejected", rep.Rejected),
				slog.Int("skipped", len(rep.Skips)),
			)
		}

		if err := c.sleep(ctx, wait); err != nil {
			c.logger.InfoContext(ctx, "controller stopped")
			return nil
		}
	}
}

// Cycle runs one loss check and one pass over the instruments. The error is
// non-nil only when the cycle could not start (balance or ledger
// unavailable) or ctx ended between instruments.
func (c *Controller) Cycle(ctx context.Context) (Report, error) {
	rep := Report{Skips: make(map[string]Skip)}
	c.quotes.reset()

	balance, err := c.venue.AccountBalance(ctx)
	if err != nil {
		return rep, fmt.Errorf("account balance: %w", err)
	}
	rep.Balance = balance

	breached, err := c.lossCheck(ctx, balance)
	if err != nil {
		return rep, err
	}
	if breached {
		rep.Breached = true
		return rep, nil
	}

	for i, sym := range c.cfg.Instruments {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		if i > 0 && c.cfg.InstrumentDelay > 0 {
			if err := c.sleep(ctx, c.cfg.InstrumentDelay); err != nil {
				return rep, err
			}
		}
		if !c.instrument(ctx, sym, balance, &rep) {
			rep.ExposureFull = true
			break
		}
	}
	return rep, nil
}

func (c *Controller) lossCheck(ctx context.Context, balance float64) (bool, error) {
	breached, err := c.ledger.DailyLossBreached(ctx, balance, c.cfg.MaxDailyLossPct)
	if err != nil {
		return false, fmt.Errorf("daily ledger: %w", err)
	}
	entry, err := c.ledger.CurrentOrRolled(ctx)
	if err != nil {
		return false, fmt.Errorf("daily ledger: %w", err)
	}

	if breached {
		c.logger.WarnContext(ctx, "daily loss breaker tripped, cooling down",
			slog.String("date", entry.Date),
			slog.Float64("daily_pnl", entry.CumulativePnL),
			slog.Float64("balance", balance),
			slog.Duration("cooldown", c.cfg.LossCooldown),
		)
		if c.breakerDay != entry.Date {
			c.breakerDay = entry.Date
			c.alert(ctx, notify.EventBreaker, "Daily loss breaker",
				fmt.Sprintf("pnl %.2f on balance %.2f, trading paused until %s ends", entry.CumulativePnL, balance, entry.Date))
		}
		return true, nil
	}

	used := entry.LossUsed(balance, c.cfg.MaxDailyLossPct)
	if c.cfg.LossWarningRatio > 0 && used >= c.cfg.LossWarningRatio && c.warnedDay != entry.Date {
		c.warnedDay = entry.Date
		c.logger.WarnContext(ctx, "daily loss approaching limit",
			slog.Float64("used", used),
			slog.Float64("daily_pnl", entry.CumulativePnL),
		)
		c.alert(ctx, notify.EventLossWarning, "Daily loss warning",
			fmt.Sprintf("%.0f%% of the daily loss limit used (pnl %.2f)", 100*used, entry.CumulativePnL))
	}
	return false, nil
}

// exposureFull reports whether the open position ceiling is reached. A
// count the venue cannot give is treated as full.
func (c *Controller) exposureFull(ctx context.Context) bool {
	n, err := c.venue.OpenPositionCount(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "open positions unknown, stopping scan", slog.String("error", err.Error()))
		return true
	}
	if n >= c.cfg.MaxOpenTrades {
		c.logger.InfoContext(ctx, "max exposure reached",
			slog.Int("open", n),
			slog.Int("max", c.cfg.MaxOpenTrades),
		)
		return true
	}
	return false
}

func (c *Controller) alert(ctx context.Context, event, title, msg string) {
	if c.alerts == nil {
		return
	}
	if err := c.alerts.Notify(ctx, event, title, msg); err != nil {
		c.logger.DebugContext(ctx, "alert not delivered", slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// quoteCache serves ticks fetched earlier in the same cycle, mostly for the
// pip value conversion pairs.
type quoteCache struct {
	store *market.TickStore
	venue broker.Broker
}

func newQuoteCache(venue broker.Broker) *quoteCache {
	return &quoteCache{store: market.NewTickStore(), venue: venue}
}

func (q *quoteCache) Tick(ctx context.Context, instrument string) (market.Tick, error) {
	if t, ok := q.store.Get(instrument); ok {
		return t, nil
	}
	return q.refresh(ctx, instrument)
}

func (q *quoteCache) refresh(ctx context.Context, instrument string) (market.Tick, error) {
	t, err := q.venue.Tick(ctx, instrument)
	if err != nil {
		return market.Tick{}, err
	}
	q.store.Set(t)
	return t, nil
}

func (q *quoteCache) reset() { q.store.Reset() }

var errNoQuote = errors.New("no usable quote")
