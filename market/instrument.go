package market

import (
	"fmt"
	"strings"
)

// Class groups instruments that share a pip-value convention.
type Class int

const (
	ClassFX Class = iota
	ClassJPY
	ClassMetal
)

func (c Class) String() string {
	switch c {
	case ClassFX:
		return "fx"
	case ClassJPY:
		return "jpy"
	case ClassMetal:
		return "metal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

var metals = map[string]bool{"XAU": true, "XAG": true, "XPT": true, "XPD": true}

// ContractSizes is the notional of one lot per metal base currency.
// Everything else trades 100,000 units per lot.
var ContractSizes = map[string]float64{
	"XAU": 100,
	"XAG": 5000,
	"XPT": 100,
	"XPD": 100,
}

const StandardLot = 100_000.0

// Instrument identifies a tradable pair such as "EURUSD".
type Instrument struct {
	Symbol string
	Base   string
	Quote  string
}

// ParseInstrument accepts "EURUSD", "EUR_USD" or "eur/usd".
func ParseInstrument(symbol string) (Instrument, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.NewReplacer("_", "", "/", "", "-", "").Replace(s)
	if len(s) != 6 {
		return Instrument{}, fmt.Errorf("instrument %q: want 6 letter currency pair", symbol)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return Instrument{}, fmt.Errorf("instrument %q: unexpected character %q", symbol, r)
		}
	}
	return Instrument{Symbol: s, Base: s[:3], Quote: s[3:]}, nil
}

// MustInstrument is ParseInstrument for literals.
func MustInstrument(symbol string) Instrument {
	in, err := ParseInstrument(symbol)
	if err != nil {
		panic(err)
	}
	return in
}

func (i Instrument) String() string { return i.Symbol }

func (i Instrument) Class() Class {
	switch {
	case metals[i.Base]:
		return ClassMetal
	case i.Quote == "JPY":
		return ClassJPY
	default:
		return ClassFX
	}
}

// Currencies returns base and quote, used for news filtering.
func (i Instrument) Currencies() []string {
	return []string{i.Base, i.Quote}
}

// ContractSize returns the default lot notional for the instrument.
func (i Instrument) ContractSize() float64 {
	if cs, ok := ContractSizes[i.Base]; ok {
		return cs
	}
	return StandardLot
}

// SymbolMeta is what the venue reports about an instrument.
type SymbolMeta struct {
	Point        float64
	Digits       int
	ContractSize float64
	Visible      bool
}

// PipSize converts the venue's raw increment into the pip used for stop
// distances: 10 points on fractional (3/5 digit) quotes and on metals.
func PipSize(meta SymbolMeta, class Class) float64 {
	if meta.Point <= 0 {
		return 0
	}
	if class == ClassMetal || meta.Digits == 3 || meta.Digits == 5 {
		return meta.Point * 10
	}
	return meta.Point
}
