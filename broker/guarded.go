package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rustyeddy/autotrader/market"
	"golang.org/x/time/rate"
)

type GuardConfig struct {
	CallTimeout   time.Duration // per venue round trip
	Retries       int           // extra attempts for reads and connect
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	SubmitsPerSec float64 // per instrument
	SubmitBurst   int
}

func GuardDefaults() GuardConfig {
	return GuardConfig{
		CallTimeout:   10 * time.Second,
		Retries:       3,
		BackoffMin:    200 * time.Millisecond,
		BackoffMax:    5 * time.Second,
		SubmitsPerSec: 2,
		SubmitBurst:   1,
	}
}

// Guarded bounds every call to the wrapped venue. Reads and Connect are
// retried with exponential backoff while they fail with
// ErrVenueUnavailable. SubmitOrder is attempted once: an order that timed
// out may still have filled and the next reconciliation pass settles it.
type Guarded struct {
	inner  Broker
	cfg    GuardConfig
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

var _ Broker = (*Guarded)(nil)

func NewGuarded(inner Broker, cfg GuardConfig, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubmitBurst < 1 {
		cfg.SubmitBurst = 1
	}
	return &Guarded{
		inner:    inner,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "broker")),
		limiters: make(map[string]*rate.Limiter),
		sleep:    sleepCtx,
	}
}

func (g *Guarded) Connect(ctx context.Context) error {
	return g.retry(ctx, "connect", func(ctx context.Context) error {
		return g.inner.Connect(ctx)
	})
}

func (g *Guarded) Disconnect(ctx context.Context) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return classify(ctx, "disconnect", g.inner.Disconnect(ctx))
}

func (g *Guarded) Tick(ctx context.Context, instrument string) (market.Tick, error) {
	var t market.Tick
	err := g.retry(ctx, "tick "+instrument, func(ctx context.Context) (err error) {
		t, err = g.inner.Tick(ctx, instrument)
		return err
	})
	return t, err
}

func (g *Guarded) SymbolMeta(ctx context.Context, instrument string) (market.SymbolMeta, error) {
	var m market.SymbolMeta
	err := g.retry(ctx, "symbol "+instrument, func(ctx context.Context) (err error) {
		m, err = g.inner.SymbolMeta(ctx, instrument)
		return err
	})
	return m, err
}

func (g *Guarded) EnsureVisible(ctx context.Context, instrument string) error {
	return g.retry(ctx, "select "+instrument, func(ctx context.Context) error {
		return g.inner.EnsureVisible(ctx, instrument)
	})
}

func (g *Guarded) RecentCloses(ctx context.Context, instrument string, count int) ([]float64, error) {
	var closes []float64
	err := g.retry(ctx, "closes "+instrument, func(ctx context.Context) (err error) {
		closes, err = g.inner.RecentCloses(ctx, instrument, count)
		return err
	})
	return closes, err
}

func (g *Guarded) OpenPositionCount(ctx context.Context) (int, error) {
	var n int
	err := g.retry(ctx, "positions", func(ctx context.Context) (err error) {
		n, err = g.inner.OpenPositionCount(ctx)
		return err
	})
	return n, err
}

func (g *Guarded) AccountBalance(ctx context.Context) (float64, error) {
	var b float64
	err := g.retry(ctx, "balance", func(ctx context.Context) (err error) {
		b, err = g.inner.AccountBalance(ctx)
		return err
	})
	return b, err
}

func (g *Guarded) ClosedDeals(ctx context.Context, from, to time.Time) ([]RawDeal, error) {
	var deals []RawDeal
	err := g.retry(ctx, "history", func(ctx context.Context) (err error) {
		deals, err = g.inner.ClosedDeals(ctx, from, to)
		return err
	})
	return deals, err
}

func (g *Guarded) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := g.limiter(req.Instrument).Wait(ctx); err != nil {
		return OrderResult{}, Unavailable("submit "+req.Instrument, err)
	}
	cctx, cancel := g.bound(ctx)
	defer cancel()

	res, err := g.inner.SubmitOrder(cctx, req)
	return res, classify(cctx, "submit "+req.Instrument, err)
}

func (g *Guarded) limiter(instrument string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[instrument]
	if !ok {
		limit := rate.Inf
		if g.cfg.SubmitsPerSec > 0 {
			limit = rate.Limit(g.cfg.SubmitsPerSec)
		}
		l = rate.NewLimiter(limit, g.cfg.SubmitBurst)
		g.limiters[instrument] = l
	}
	return l
}

func (g *Guarded) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.cfg.CallTimeout)
}

func (g *Guarded) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	b := &backoff.Backoff{
		Min:    g.cfg.BackoffMin,
		Max:    g.cfg.BackoffMax,
		Factor: 2,
		Jitter: true,
	}
	for attempt := 0; ; attempt++ {
		cctx, cancel := g.bound(ctx)
		err := classify(cctx, op, fn(cctx))
		cancel()

		if err == nil || !errors.Is(err, ErrVenueUnavailable) || attempt >= g.cfg.Retries {
			return err
		}
		if ctx.Err() != nil {
			return err
		}

		d := b.Duration()
		g.logger.WarnContext(ctx, "venue call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", d),
			slog.String("error", err.Error()),
		)
		if serr := g.sleep(ctx, d); serr != nil {
			return err
		}
	}
}

// classify turns a deadline hit on the bounded context into
// ErrVenueUnavailable. Venue answers such as ErrNoTick and rejections are
// returned as they are.
func classify(cctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrVenueUnavailable) || errors.Is(err, ErrNoTick) || errors.Is(err, ErrOrderRejected) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return Unavailable(op, err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
