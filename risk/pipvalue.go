package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/rustyeddy/autotrader/market"
)

// FallbackPipValues is the per-lot pip value (account currency) used when no
// live conversion quote can be resolved.
var FallbackPipValues = map[market.Class]float64{
	market.ClassFX:    10.0,
	market.ClassJPY:   9.0,
	market.ClassMetal: 10.0,
}

// PipValuer resolves the monetary value of one pip on one lot. The live
// quote is tried first; the class fallback table is second and is logged as
// degraded precision.
type PipValuer struct {
	AccountCurrency string
	Prices          market.TickSource
	Fallback        map[market.Class]float64
	Logger          *slog.Logger
}

func NewPipValuer(accountCurrency string, prices market.TickSource, logger *slog.Logger) *PipValuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipValuer{
		AccountCurrency: accountCurrency,
		Prices:          prices,
		Fallback:        FallbackPipValues,
		Logger:          logger.With(slog.String("component", "pipvalue")),
	}
}

func (p *PipValuer) PerLot(ctx context.Context, in market.Instrument, meta market.SymbolMeta) (float64, error) {
	pip := market.PipSize(meta, in.Class())
	if !(pip > 0) {
		return 0, fmt.Errorf("%w: %s has point %v", ErrInvalidPipValue, in, meta.Point)
	}
	contract := meta.ContractSize
	if contract <= 0 {
		contract = in.ContractSize()
	}

	var value float64
	if rate, ok := market.QuoteToAccountRate(ctx, in.Quote, p.AccountCurrency, p.Prices); ok {
		value = contract * pip * rate
	} else {
		fb, found := p.Fallback[in.Class()]
		if !found {
			return 0, fmt.Errorf("%w: no conversion %s->%s and no fallback for class %s",
				ErrInvalidPipValue, in.Quote, p.AccountCurrency, in.Class())
		}
		p.Logger.WarnContext(ctx, "pip value from fallback table, degraded precision",
			slog.String("instrument", in.Symbol),
			slog.String("quote", in.Quote),
			slog.String("account", p.AccountCurrency),
			slog.String("class", in.Class().String()),
			slog.Float64("pip_value", fb),
		)
		value = fb
	}

	if !(value > 0) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %s resolved to %v", ErrInvalidPipValue, in, value)
	}
	return value, nil
}
