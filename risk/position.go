package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/autotrader/market"
	"github.com/shopspring/decimal"
)

type PipValueResolver interface {
	PerLot(ctx context.Context, in market.Instrument, meta market.SymbolMeta) (float64, error)
}

// Sizer turns a risk amount and a stop distance into lots. The result is
// always rounded to the lot step and clamped to [MinLot, MaxLot].
type Sizer struct {
	MinLot    float64
	MaxLot    float64
	LotStep   int32 // decimal places
	PipValues PipValueResolver
}

type Result struct {
	Lots       float64
	RawLots    float64
	RiskAmount float64
	PipValue   float64
	Clamped    bool
}

func NewSizer(minLot, maxLot float64, pv PipValueResolver) *Sizer {
	return &Sizer{MinLot: minLot, MaxLot: maxLot, LotStep: 2, PipValues: pv}
}

// Size resolves the pip value for the instrument and sizes the order.
func (s *Sizer) Size(ctx context.Context, balance, stopPips float64, in market.Instrument, meta market.SymbolMeta, p Policy) (Result, error) {
	if p.IsEmpty() {
		return Result{}, ErrInvalidPolicy
	}
	if err := checkStop(stopPips); err != nil {
		return Result{}, err
	}
	if s.PipValues == nil {
		return Result{}, fmt.Errorf("%w: no pip value resolver", ErrInvalidPipValue)
	}

	pv, err := s.PipValues.PerLot(ctx, in, meta)
	if err != nil {
		return Result{}, err
	}
	return s.Lots(balance, stopPips, pv, p)
}

// Lots is the pure part of sizing:
//
//	lots = riskAmount / (stopPips * pipValue)
func (s *Sizer) Lots(balance, stopPips, pipValue float64, p Policy) (Result, error) {
	if p.IsEmpty() {
		return Result{}, ErrInvalidPolicy
	}
	if err := checkStop(stopPips); err != nil {
		return Result{}, err
	}
	if !(pipValue > 0) || math.IsInf(pipValue, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPipValue, pipValue)
	}
	if math.IsNaN(balance) || math.IsInf(balance, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidBalance, balance)
	}
	if !(s.MinLot > 0) || s.MaxLot < s.MinLot {
		return Result{}, fmt.Errorf("lot bounds [%v, %v] are invalid", s.MinLot, s.MaxLot)
	}

	res := Result{
		RiskAmount: p.RiskAmount(balance),
		PipValue:   pipValue,
	}
	res.RawLots = res.RiskAmount / (stopPips * pipValue)

	var lots float64
	switch {
	case math.IsInf(res.RawLots, 1):
		lots = s.MaxLot
	case res.RawLots > 0:
		lots = decimal.NewFromFloat(res.RawLots).Round(s.LotStep).InexactFloat64()
	}
	res.Lots = s.clamp(lots)
	res.Clamped = res.Lots != lots
	return res, nil
}

func (s *Sizer) clamp(lots float64) float64 {
	return math.Min(s.MaxLot, math.Max(s.MinLot, lots))
}

func checkStop(stopPips float64) error {
	if !(stopPips > 0) || math.IsInf(stopPips, 0) {
		return fmt.Errorf("%w: %v pips", ErrInvalidStopDistance, stopPips)
	}
	return nil
}
