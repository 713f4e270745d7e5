package market

import (
	"math"
	"sync"
	"time"
)

type Tick struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}

// SpreadPips returns the spread measured in pips. An unknown pip size or a
// crossed quote yields +Inf so that spread gates always reject.
func (t Tick) SpreadPips(pip float64) float64 {
	s := t.Spread()
	if pip <= 0 || math.IsNaN(pip) || s < 0 || math.IsNaN(s) {
		return math.Inf(1)
	}
	return s / pip
}

// TickStore keeps the latest tick per instrument. The controller uses one
// as a per-cycle quote cache so conversion lookups reuse ticks it already
// fetched.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Instrument] = t
}

func (ts *TickStore) Get(instrument string) (Tick, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[instrument]
	return t, ok
}

// Reset drops every cached tick.
func (ts *TickStore) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	clear(ts.ticks)
}
