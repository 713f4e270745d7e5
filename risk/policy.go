package risk

import "fmt"

// Policy is either a fixed amount of account currency at risk or a fraction
// of balance. When both are set the fixed amount wins; when neither is set
// the policy is empty and sizing refuses it.
type Policy struct {
	Amount   float64 // fixed risk, account currency
	Fraction float64 // e.g. 0.02
}

func FixedAmount(amount float64) Policy {
	return Policy{Amount: amount}
}

func PercentOfBalance(fraction float64) Policy {
	return Policy{Fraction: fraction}
}

func (p Policy) IsFixed() bool {
	return p.Amount > 0
}

func (p Policy) IsEmpty() bool {
	return !(p.Amount > 0) && !(p.Fraction > 0)
}

// RiskAmount is the account currency put at risk for the given balance.
func (p Policy) RiskAmount(balance float64) float64 {
	if p.IsFixed() {
		return p.Amount
	}
	return balance * p.Fraction
}

func (p Policy) String() string {
	switch {
	case p.IsFixed():
		return fmt.Sprintf("fixed(%.2f)", p.Amount)
	case p.Fraction > 0:
		return fmt.Sprintf("percent(%.2f%%)", 100*p.Fraction)
	default:
		return "empty"
	}
}

// Selector picks the policy for a balance. Accounts under the small-account
// threshold risk a fixed amount with a floor so that tiny balances still
// produce an order the venue accepts.
type Selector struct {
	SmallAccountThreshold    float64 `json:"small_account_threshold" yaml:"small_account_threshold"` // 50
	SmallAccountRiskFraction float64 `json:"small_account_risk_pct" yaml:"small_account_risk_pct"`   // 0.03
	MinFixedRisk             float64 `json:"small_account_min_risk" yaml:"small_account_min_risk"`   // 0.20
	DefaultRiskFraction      float64 `json:"default_risk_pct" yaml:"default_risk_pct"`               // 0.02
}

func SelectorDefaults() Selector {
	return Selector{
		SmallAccountThreshold:    50,
		SmallAccountRiskFraction: 0.03,
		MinFixedRisk:             0.20,
		DefaultRiskFraction:      0.02,
	}
}

func (s Selector) Select(balance float64) Policy {
	if balance < s.SmallAccountThreshold {
		return FixedAmount(max(s.MinFixedRisk, balance*s.SmallAccountRiskFraction))
	}
	return PercentOfBalance(s.DefaultRiskFraction)
}
