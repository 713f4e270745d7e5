package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/notify"
	"github.com/rustyeddy/autotrader/pkg/id"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/strategies"
	"github.com/shopspring/decimal"
)

// Skip names the gate that stopped an instrument in a cycle.
type Skip string

const (
	SkipLocked   Skip = "locked"
	SkipVenue    Skip = "venue"
	SkipSpread   Skip = "spread"
	SkipNews     Skip = "news"
	SkipExposure Skip = "exposure"
	SkipHistory  Skip = "history"
	SkipNoSignal Skip = "no_signal"
	SkipInvalid  Skip = "invalid"
)

// Report summarizes one cycle.
type Report struct {
	Balance      float64
	Breached     bool
	ExposureFull bool
	Submitted    int
	Rejected     int
	Skips        map[string]Skip
}

// intent is a sized trade for one instrument.
type intent struct {
	in         market.Instrument
	meta       market.SymbolMeta
	pip        float64
	dir        market.Direction
	reason     strategies.Reason
	stopPips   float64
	targetPips float64
	lots       float64
}

// instrument runs the gate chain and the layers for one symbol. It returns
// false when the scan must stop for the rest of the cycle.
func (c *Controller) instrument(ctx context.Context, sym string, balance float64, rep *Report) bool {
	log := c.logger.With(slog.String("instrument", sym))
	skip := func(s Skip, msg string, attrs ...any) bool {
		rep.Skips[sym] = s
		log.DebugContext(ctx, msg, attrs...)
		return true
	}

	if floor, ok := c.cfg.Locks[sym]; ok && balance < floor {
		return skip(SkipLocked, "instrument locked for balance", slog.Float64("balance", balance), slog.Float64("min", floor))
	}

	in, err := market.ParseInstrument(sym)
	if err != nil {
		rep.Skips[sym] = SkipInvalid
		log.ErrorContext(ctx, "bad instrument", slog.String("error", err.Error()))
		return true
	}
	meta, err := c.venue.SymbolMeta(ctx, sym)
	if err != nil {
		rep.Skips[sym] = SkipVenue
		log.WarnContext(ctx, "symbol metadata unavailable", slog.String("error", err.Error()))
		return true
	}
	if !meta.Visible {
		if err := c.venue.EnsureVisible(ctx, sym); err != nil {
			rep.Skips[sym] = SkipVenue
			log.WarnContext(ctx, "symbol not selectable", slog.String("error", err.Error()))
			return true
		}
	}

	pip := market.PipSize(meta, in.Class())
	spread := math.Inf(1)
	if t, err := c.quotes.Tick(ctx, sym); err == nil {
		spread = t.SpreadPips(pip)
	} else if !errors.Is(err, broker.ErrNoTick) {
		log.WarnContext(ctx, "tick unavailable", slog.String("error", err.Error()))
	}
	if spread > c.cfg.MaxSpreadPips {
		return skip(SkipSpread, "spread too wide", slog.Float64("spread_pips", spread), slog.Float64("max", c.cfg.MaxSpreadPips))
	}

	if c.news.BlackoutActive(ctx, sym, c.now()) {
		return skip(SkipNews, "news blackout")
	}

	if c.exposureFull(ctx) {
		rep.Skips[sym] = SkipExposure
		return false
	}

	closes, err := c.venue.RecentCloses(ctx, sym, c.cfg.PriceWindow)
	if err != nil {
		rep.Skips[sym] = SkipVenue
		log.WarnContext(ctx, "price window unavailable", slog.String("error", err.Error()))
		return true
	}
	snap, ok := c.signals.Snapshot(closes)
	if !ok {
		return skip(SkipHistory, "insufficient history", slog.Int("closes", len(closes)))
	}

	dir, reason := c.rules.Resolve(snap)
	if dir == market.NoDirection {
		return skip(SkipNoSignal, "no signal",
			slog.Float64("adx", snap.ADX),
			slog.Float64("rsi", snap.RSI),
		)
	}

	it, err := c.size(ctx, in, meta, pip, snap, balance)
	if err != nil {
		rep.Skips[sym] = SkipInvalid
		log.ErrorContext(ctx, "cannot size order", slog.String("error", err.Error()))
		return true
	}
	it.dir, it.reason = dir, reason

	return c.layers(ctx, it, balance, rep, log)
}

// size derives the stop from ATR in pips and sizes the order under the
// policy for the balance. Both distances are whole pips, halves rounding to
// even.
func (c *Controller) size(ctx context.Context, in market.Instrument, meta market.SymbolMeta, pip float64, snap strategies.Snapshot, balance float64) (intent, error) {
	if !(pip > 0) {
		return intent{}, fmt.Errorf("%w: %s pip size %v", risk.ErrInvalidPipValue, in, pip)
	}
	stop := math.Max(c.cfg.StopFloorPips, math.RoundToEven(snap.ATR/pip*c.cfg.ATRMultiplier))

	res, err := c.sizer.Size(ctx, balance, stop, in, meta, c.selector.Select(balance))
	if err != nil {
		return intent{}, err
	}
	return intent{
		in:         in,
		meta:       meta,
		pip:        pip,
		stopPips:   stop,
		targetPips: math.RoundToEven(stop * c.cfg.RewardRisk),
		lots:       res.Lots,
	}, nil
}

// layers submits up to MaxLayers orders in the same direction. Exposure is
// checked before every submission; a rejection or an unknown outcome ends
// the layers for this instrument.
func (c *Controller) layers(ctx context.Context, it intent, balance float64, rep *Report, log *slog.Logger) bool {
	for layer := 1; layer <= c.cfg.MaxLayers; layer++ {
		if layer > 1 && c.cfg.LayerDelay > 0 {
			if err := c.sleep(ctx, c.cfg.LayerDelay); err != nil {
				return true
			}
		}
		if c.exposureFull(ctx) {
			rep.ExposureFull = true
			return false
		}

		err := c.submit(ctx, it, balance, layer, log)
		switch {
		case err == nil:
			rep.Submitted++
		case errors.Is(err, broker.ErrOrderRejected):
			rep.Rejected++
			log.WarnContext(ctx, "order rejected, remaining layers dropped",
				slog.Int("layer", layer),
				slog.String("error", err.Error()),
			)
			c.alert(ctx, notify.EventOrderRejected, "Order rejected",
				fmt.Sprintf("%s %s layer %d: %v", it.in, it.dir, layer, err))
			return true
		default:
			log.WarnContext(ctx, "order outcome unknown, left to reconciliation",
				slog.Int("layer", layer),
				slog.String("error", err.Error()),
			)
			return true
		}
	}
	return true
}

func (c *Controller) submit(ctx context.Context, it intent, balance float64, layer int, log *slog.Logger) error {
	t, err := c.quotes.refresh(ctx, it.in.Symbol)
	if err != nil {
		return err
	}
	entry := t.Ask
	if it.dir == market.Short {
		entry = t.Bid
	}
	if !(entry > 0) {
		return fmt.Errorf("%w for %s", errNoQuote, it.in)
	}
	sign := it.dir.Sign()
	rowID := id.New()
	req := broker.OrderRequest{
		Instrument:  it.in.Symbol,
		Direction:   it.dir,
		Lots:        it.lots,
		StopPrice:   roundPrice(entry-sign*it.stopPips*it.pip, it.meta.Digits),
		TargetPrice: roundPrice(entry+sign*it.targetPips*it.pip, it.meta.Digits),
		Deviation:   c.cfg.Deviation,
		Tag:         id.Tag(rowID),
	}

	// the order is not cancelled with ctx; an in-flight submission finishes
	sctx := context.WithoutCancel(ctx)
	if c.cfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, c.cfg.OrderTimeout)
		defer cancel()
	}
	res, err := c.venue.SubmitOrder(sctx, req)
	if err != nil {
		return err
	}

	sctx = context.WithoutCancel(ctx)
	day, err := c.ledger.RecordTrade(sctx, 0)
	if err != nil {
		log.ErrorContext(ctx, "ledger not updated for submitted order",
			slog.String("order", res.OrderID),
			slog.String("error", err.Error()),
		)
	}

	at := res.Time
	if at.IsZero() {
		at = c.now()
	}
	row := journal.TradeLogRow{
		ID:              rowID,
		Time:            at,
		Instrument:      it.in.Symbol,
		Direction:       it.dir,
		Lots:            it.lots,
		StopPips:        journal.Float(it.stopPips),
		TargetPips:      journal.Float(it.targetPips),
		Balance:         journal.Float(balance),
		DailyTradeCount: day.TradeCount,
		Kind:            journal.KindOpen,
		Reason:          string(it.reason),
	}
	if err := c.journal.AppendTrade(sctx, row); err != nil {
		log.ErrorContext(ctx, "trade log append failed",
			slog.String("order", res.OrderID),
			slog.String("error", err.Error()),
		)
	}

	log.InfoContext(ctx, "order submitted",
		slog.String("order", res.OrderID),
		slog.String("direction", it.dir.String()),
		slog.Int("layer", layer),
		slog.Float64("lots", it.lots),
		slog.Float64("stop_pips", it.stopPips),
		slog.Float64("target_pips", it.targetPips),
		slog.Float64("price", res.Price),
		slog.String("reason", string(it.reason)),
	)
	c.alert(ctx, notify.EventOrderSubmitted, "Order submitted",
		fmt.Sprintf("%s %s %.2f lots (layer %d) at %v", it.in, it.dir, it.lots, layer, res.Price))
	return nil
}

func roundPrice(p float64, digits int) float64 {
	if digits <= 0 {
		return p
	}
	return decimal.NewFromFloat(p).Round(int32(digits)).InexactFloat64()
}
