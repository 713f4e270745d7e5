// Package brokertest provides a scriptable in-memory venue for tests.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
)

// Fake is a broker.Broker whose answers are set by the test. Every method
// is safe for concurrent use and counts its calls.
type Fake struct {
	mu sync.Mutex

	Ticks   map[string]market.Tick
	Meta    map[string]market.SymbolMeta
	Closes  map[string][]float64
	Deals   []broker.RawDeal
	Balance float64

	// OpenPositions is what OpenPositionCount reports. When
	// CountSubmits is set every accepted order adds one.
	OpenPositions int
	CountSubmits  bool

	// RejectAt maps a 1-based submission number to the venue answer for it.
	RejectAt map[int]error

	ConnectErr error
	TickErr    error
	DealsErr   error
	BalanceErr error

	Submitted []broker.OrderRequest
	Attempts  int
	Calls     map[string]int
	Connected bool
}

var _ broker.Broker = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Ticks:    make(map[string]market.Tick),
		Meta:     make(map[string]market.SymbolMeta),
		Closes:   make(map[string][]float64),
		RejectAt: make(map[int]error),
		Calls:    make(map[string]int),
	}
}

// WithFX registers a 5-digit FX instrument with a quote and a close window.
func (f *Fake) WithFX(symbol string, bid, ask float64, closes []float64) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ticks[symbol] = market.Tick{Instrument: symbol, Bid: bid, Ask: ask, Time: time.Now()}
	f.Meta[symbol] = market.SymbolMeta{Point: 0.00001, Digits: 5, ContractSize: market.StandardLot, Visible: true}
	f.Closes[symbol] = closes
	return f
}

func (f *Fake) SetOpenPositions(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenPositions = n
}

func (f *Fake) SetDeals(deals ...broker.RawDeal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deals = deals
}

func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

func (f *Fake) Submissions() []broker.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broker.OrderRequest(nil), f.Submitted...)
}

func (f *Fake) SubmitAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Attempts
}

func (f *Fake) call(method string) {
	f.Calls[method]++
}

func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("Connect")
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.Connected = true
	return nil
}

func (f *Fake) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("Disconnect")
	f.Connected = false
	return nil
}

func (f *Fake) Tick(_ context.Context, instrument string) (market.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("Tick")
	if f.TickErr != nil {
		return market.Tick{}, f.TickErr
	}
	t, ok := f.Ticks[instrument]
	if !ok {
		return market.Tick{}, broker.ErrNoTick
	}
	return t, nil
}

func (f *Fake) SymbolMeta(_ context.Context, instrument string) (market.SymbolMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("SymbolMeta")
	m, ok := f.Meta[instrument]
	if !ok {
		return market.SymbolMeta{}, fmt.Errorf("unknown symbol %s", instrument)
	}
	return m, nil
}

func (f *Fake) EnsureVisible(_ context.Context, instrument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("EnsureVisible")
	m, ok := f.Meta[instrument]
	if !ok {
		return fmt.Errorf("unknown symbol %s", instrument)
	}
	m.Visible = true
	f.Meta[instrument] = m
	return nil
}

func (f *Fake) RecentCloses(_ context.Context, instrument string, count int) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("RecentCloses")
	c := f.Closes[instrument]
	if count > 0 && len(c) > count {
		c = c[len(c)-count:]
	}
	return append([]float64(nil), c...), nil
}

func (f *Fake) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("SubmitOrder")
	f.Attempts++
	if err, ok := f.RejectAt[f.Attempts]; ok {
		return broker.OrderResult{}, err
	}
	f.Submitted = append(f.Submitted, req)
	if f.CountSubmits {
		f.OpenPositions++
	}
	t := f.Ticks[req.Instrument]
	price := t.Ask
	if req.Direction == market.Short {
		price = t.Bid
	}
	return broker.OrderResult{
		OrderID: fmt.Sprintf("%d", 1000+f.Attempts),
		Price:   price,
		Time:    time.Now(),
	}, nil
}

func (f *Fake) OpenPositionCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("OpenPositionCount")
	return f.OpenPositions, nil
}

func (f *Fake) AccountBalance(context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("AccountBalance")
	return f.Balance, f.BalanceErr
}

func (f *Fake) ClosedDeals(_ context.Context, from, to time.Time) ([]broker.RawDeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call("ClosedDeals")
	if f.DealsErr != nil {
		return nil, f.DealsErr
	}
	var out []broker.RawDeal
	for _, d := range f.Deals {
		if !d.Time.Before(from) && !d.Time.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}
