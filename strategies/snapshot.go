package strategies

import (
	"github.com/rustyeddy/autotrader/indicators"
)

// Snapshot is the indicator set computed for one instrument in one cycle.
type Snapshot struct {
	FastMA     float64
	SlowMA     float64
	RSI        float64
	ATR        float64 // price units
	ADX        float64
	LastClose  float64
	WindowSize int
}

// Source turns a window of closes into a Snapshot. ok is false when the
// window is too short.
type Source interface {
	Snapshot(closes []float64) (snap Snapshot, ok bool)
}

type IndicatorConfig struct {
	FastPeriod int `json:"fast_period" yaml:"fast_period"` // 9
	SlowPeriod int `json:"slow_period" yaml:"slow_period"` // 21
	RSIPeriod  int `json:"rsi_period" yaml:"rsi_period"`   // 14
	ATRPeriod  int `json:"atr_period" yaml:"atr_period"`   // 14
	ADXPeriod  int `json:"adx_period" yaml:"adx_period"`   // 14
	MinWindow  int `json:"min_window" yaml:"min_window"`   // 30
}

func IndicatorConfigDefaults() IndicatorConfig {
	return IndicatorConfig{
		FastPeriod: 9,
		SlowPeriod: 21,
		RSIPeriod:  14,
		ATRPeriod:  14,
		ADXPeriod:  14,
		MinWindow:  30,
	}
}

// IndicatorSource computes EMA fast/slow, RSI, ATR and ADX.
type IndicatorSource struct {
	IndicatorConfig
}

func NewIndicatorSource(cfg IndicatorConfig) *IndicatorSource {
	return &IndicatorSource{IndicatorConfig: cfg}
}

// required is the shortest window every indicator can be computed on.
func (s *IndicatorSource) required() int {
	n := s.MinWindow
	for _, m := range []int{s.SlowPeriod, s.FastPeriod, s.RSIPeriod + 1, s.ATRPeriod + 1, 2*s.ADXPeriod + 1} {
		if m > n {
			n = m
		}
	}
	return n
}

func (s *IndicatorSource) Snapshot(closes []float64) (Snapshot, bool) {
	if len(closes) == 0 || len(closes) < s.required() {
		return Snapshot{}, false
	}

	var (
		snap Snapshot
		err  error
	)
	if snap.FastMA, err = indicators.EMA(closes, s.FastPeriod); err != nil {
		return Snapshot{}, false
	}
	if snap.SlowMA, err = indicators.EMA(closes, s.SlowPeriod); err != nil {
		return Snapshot{}, false
	}
	if snap.RSI, err = indicators.RSI(closes, s.RSIPeriod); err != nil {
		return Snapshot{}, false
	}
	if snap.ATR, err = indicators.ATR(closes, s.ATRPeriod); err != nil {
		return Snapshot{}, false
	}
	if snap.ADX, err = indicators.ADX(closes, s.ADXPeriod); err != nil {
		return Snapshot{}, false
	}
	snap.LastClose = closes[len(closes)-1]
	snap.WindowSize = len(closes)
	return snap, true
}
