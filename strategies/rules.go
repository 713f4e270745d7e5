package strategies

import "github.com/rustyeddy/autotrader/market"

// Rules resolves a Snapshot into a direction. Trend following wins: fast
// above slow with ADX over TrendStrength is long, the inverse short.
// Otherwise RSI below Oversold is long and above Overbought is short.
type Rules struct {
	TrendStrength float64 `json:"trend_strength" yaml:"trend_strength"` // 20
	Oversold      float64 `json:"oversold" yaml:"oversold"`             // 30
	Overbought    float64 `json:"overbought" yaml:"overbought"`         // 70
}

func RulesDefaults() Rules {
	return Rules{TrendStrength: 20, Oversold: 30, Overbought: 70}
}

// Reason names the rule that fired, for the trade log.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonTrend     Reason = "trend"
	ReasonReversion Reason = "mean-reversion"
)

func (r Rules) Resolve(s Snapshot) (market.Direction, Reason) {
	if s.ADX > r.TrendStrength {
		switch {
		case s.FastMA > s.SlowMA:
			return market.Long, ReasonTrend
		case s.FastMA < s.SlowMA:
			return market.Short, ReasonTrend
		}
	}

	switch {
	case s.RSI < r.Oversold:
		return market.Long, ReasonReversion
	case s.RSI > r.Overbought:
		return market.Short, ReasonReversion
	}
	return market.NoDirection, ReasonNone
}
