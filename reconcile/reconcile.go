// Package reconcile folds the venue's closed-deal history into the daily
// ledger and the trade log, once per deal across restarts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/ledger"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/notify"
	"github.com/rustyeddy/autotrader/pkg/id"
)

// ErrSeenPersist marks a deal that was folded but whose seen mark could not
// be written. A restart may see that deal again.
var ErrSeenPersist = errors.New("seen-deal set not persisted")

type DealSource interface {
	ClosedDeals(ctx context.Context, from, to time.Time) ([]broker.RawDeal, error)
}

type TradeRecorder interface {
	RecordTrade(ctx context.Context, pnlDelta float64) (ledger.Entry, error)
}

// Folder commits a closed deal's ledger update, trade row and seen mark in
// one transaction. It returns journal.ErrDealSeen, having written nothing,
// for a deal folded before.
type Folder interface {
	FoldClosed(ctx context.Context, date string, row journal.TradeLogRow) (ledger.Entry, error)
}

// Deal is a closed deal that has been folded.
type Deal struct {
	ID          string
	Instrument  string
	Direction   market.Direction
	Volume      float64
	RealizedPnL float64
	CloseTime   time.Time
}

type Reconciler struct {
	deals   DealSource
	journal journal.Journal
	ledger  TradeRecorder
	store   SeenStore
	folder  Folder
	today   func() string
	alerts  notify.Alerter
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]struct{}
}

type Option func(*Reconciler)

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithFolder makes every fold a single transaction on f. today names the
// ledger day the pnl belongs to.
func WithFolder(f Folder, today func() string) Option {
	return func(r *Reconciler) {
		if f != nil && today != nil {
			r.folder, r.today = f, today
		}
	}
}

func WithAlerter(a notify.Alerter) Option {
	return func(r *Reconciler) { r.alerts = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(deals DealSource, j journal.Journal, l TradeRecorder, store SeenStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		deals:   deals,
		journal: j,
		ledger:  l,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "reconcile"))
	return r
}

// Load merges the persisted seen set into memory. ReconcileClosed calls it
// at the start of every pass, which picks up deals folded by another process.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked(ctx)
}

func (r *Reconciler) loadLocked(ctx context.Context) error {
	ids, err := r.store.LoadSeen(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load seen deals: %w", err)
	}
	for _, deal := range ids {
		r.seen[deal] = struct{}{}
	}
	r.logger.DebugContext(ctx, "seen deals loaded", slog.Int("count", len(ids)))
	return nil
}

// Seen reports whether a deal id has already been folded.
func (r *Reconciler) Seen(dealID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[dealID]
	return ok
}

// ReconcileClosed folds every deal closed within lookback that has not been
// seen. Deals with an unknown direction are skipped, left unseen and
// reported in the returned error. Each deal is persisted as seen right after
// its fold; a failed write is logged and returned as ErrSeenPersist
// alongside the deals that were folded. Once started, a deal's fold runs to
// the end even if ctx is cancelled; no new deal is started after that.
func (r *Reconciler) ReconcileClosed(ctx context.Context, lookback time.Duration) ([]Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return nil, err
	}

	to := r.now()
	raw, err := r.deals.ClosedDeals(ctx, to.Add(-lookback), to)
	if err != nil {
		return nil, fmt.Errorf("reconcile: closed deals: %w", err)
	}

	var (
		folded []Deal
		errs   []error
	)
	for _, d := range raw {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, ok := r.seen[d.Ticket]; ok {
			continue
		}

		dir, err := d.Direction()
		if err != nil {
			r.logger.ErrorContext(ctx, "closed deal skipped",
				slog.String("deal", d.Ticket),
				slog.String("instrument", d.Instrument),
				slog.Int("type", int(d.Type)),
				slog.String("error", err.Error()),
			)
			r.alert(ctx, notify.EventUnknownDeal, "Unknown deal direction",
				fmt.Sprintf("deal %s on %s has type %d", d.Ticket, d.Instrument, int(d.Type)))
			errs = append(errs, err)
			continue
		}

		row := journal.TradeLogRow{
			ID:          id.New(),
			Time:        d.Time,
			Instrument:  d.Instrument,
			Direction:   dir,
			Lots:        d.Volume,
			RealizedPnL: d.Profit,
			DealID:      d.Ticket,
			Kind:        journal.KindClosed,
		}
		entry, ok, err := r.fold(context.WithoutCancel(ctx), row)
		if err != nil {
			errs = append(errs, err)
		}
		if !ok {
			continue
		}

		folded = append(folded, Deal{
			ID:          d.Ticket,
			Instrument:  d.Instrument,
			Direction:   dir,
			Volume:      d.Volume,
			RealizedPnL: d.Profit,
			CloseTime:   d.Time,
		})
		r.logger.InfoContext(ctx, "closed deal folded",
			slog.String("deal", d.Ticket),
			slog.String("instrument", d.Instrument),
			slog.String("direction", dir.String()),
			slog.Float64("pnl", d.Profit),
			slog.Int("daily_trades", entry.TradeCount),
			slog.Float64("daily_pnl", entry.CumulativePnL),
		)
	}

	return folded, errors.Join(errs...)
}

// fold records one closed deal. ok reports that the ledger now holds its
// pnl, in which case the deal is seen in memory whatever err says.
func (r *Reconciler) fold(ctx context.Context, row journal.TradeLogRow) (entry ledger.Entry, ok bool, err error) {
	deal := row.DealID

	if r.folder != nil {
		entry, err = r.folder.FoldClosed(ctx, r.today(), row)
		switch {
		case errors.Is(err, journal.ErrDealSeen):
			r.seen[deal] = struct{}{}
			r.logger.DebugContext(ctx, "closed deal already folded", slog.String("deal", deal))
			return entry, false, nil
		case err != nil:
			// nothing was written, the next pass retries it
			return entry, false, fmt.Errorf("deal %s: %w", deal, err)
		}
		r.seen[deal] = struct{}{}
		return entry, true, nil
	}

	entry, err = r.ledger.RecordTrade(ctx, row.RealizedPnL)
	if err != nil {
		// not marked seen, the next pass retries it
		return entry, false, fmt.Errorf("deal %s: %w", deal, err)
	}
	r.seen[deal] = struct{}{}

	var errs []error
	if err := r.store.SaveSeen(ctx, r.ids()); err != nil {
		r.logger.WarnContext(ctx, "seen deal not persisted, reconciliation degraded",
			slog.String("deal", deal),
			slog.String("error", err.Error()),
		)
		r.alert(ctx, notify.EventReconcileDegraded, "Reconciliation degraded",
			fmt.Sprintf("deal %s folded but not saved as seen: %v", deal, err))
		errs = append(errs, fmt.Errorf("deal %s: %w: %w", deal, ErrSeenPersist, err))
	}

	row.DailyTradeCount = entry.TradeCount
	if err := r.journal.AppendTrade(ctx, row); err != nil {
		// the pnl is already in the ledger and the deal is seen; the gap
		// is left to the log
		r.logger.ErrorContext(ctx, "trade log append failed",
			slog.String("deal", deal),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("deal %s: append: %w", deal, err))
	}
	return entry, true, errors.Join(errs...)
}

// Run reconciles every interval until ctx ends. Failed passes are logged
// and retried on the next tick.
func (r *Reconciler) Run(ctx context.Context, interval, lookback time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.ReconcileClosed(ctx, lookback); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "reconcile pass incomplete", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (r *Reconciler) ids() []string {
	out := make([]string, 0, len(r.seen))
	for deal := range r.seen {
		out = append(out, deal)
	}
	return out
}

func (r *Reconciler) alert(ctx context.Context, event, title, msg string) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Notify(ctx, event, title, msg); err != nil {
		r.logger.DebugContext(ctx, "alert not delivered", slog.String("error", err.Error()))
	}
}
