// Package news decides whether an instrument is in a blackout around a
// scheduled high-impact economic release.
package news

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/market"
	"gopkg.in/yaml.v3"
)

type Guard interface {
	BlackoutActive(ctx context.Context, instrument string, now time.Time) bool
}

// NoBlackout never blocks trading.
type NoBlackout struct{}

func (NoBlackout) BlackoutActive(context.Context, string, time.Time) bool { return false }

type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// HighImpactTitles promote an event to high impact whatever the feed says.
var HighImpactTitles = []string{
	"Non-Farm Payrolls",
	"Federal Reserve Interest Rate Decision",
	"CPI",
	"GDP",
	"Employment Change",
	"Unemployment Rate",
	"ECB Interest Rate Decision",
	"BoE Interest Rate Decision",
	"BoJ Interest Rate Decision",
}

type Event struct {
	Title    string    `yaml:"title"`
	Currency string    `yaml:"currency"`
	Impact   Impact    `yaml:"impact"`
	Time     time.Time `yaml:"time"`
}

// RiskLevel is the event's impact after title promotion.
func (e Event) RiskLevel() Impact {
	for _, t := range HighImpactTitles {
		if strings.Contains(e.Title, t) {
			return ImpactHigh
		}
	}
	return Impact(strings.ToLower(string(e.Impact)))
}

// Calendar blocks an instrument while a high-impact event for either of
// its currencies is within Window of now, before or after.
type Calendar struct {
	Window time.Duration

	mu     sync.RWMutex
	events []Event
}

var _ Guard = (*Calendar)(nil)

func NewCalendar(window time.Duration, events []Event) *Calendar {
	c := &Calendar{Window: window}
	c.Replace(events)
	return c
}

type calendarFile struct {
	Events []Event `yaml:"events"`
}

// LoadCalendar reads a YAML file of the form
//
//	events:
//	  - title: US Non-Farm Payrolls
//	    currency: USD
//	    impact: high
//	    time: 2024-05-03T12:30:00Z
func LoadCalendar(path string, window time.Duration) (*Calendar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f calendarFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse calendar %s: %w", path, err)
	}
	for i, e := range f.Events {
		if e.Currency == "" || e.Time.IsZero() {
			return nil, fmt.Errorf("calendar %s: event %d (%q) needs currency and time", path, i, e.Title)
		}
	}
	return NewCalendar(window, f.Events), nil
}

// Replace swaps the event list, e.g. after reloading the file.
func (c *Calendar) Replace(events []Event) {
	sorted := append([]Event(nil), events...)
	for i := range sorted {
		sorted[i].Currency = strings.ToUpper(strings.TrimSpace(sorted[i].Currency))
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Time.Before(sorted[b].Time) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = sorted
}

func (c *Calendar) BlackoutActive(_ context.Context, instrument string, now time.Time) bool {
	_, ok := c.Blocking(instrument, now)
	return ok
}

// Blocking returns the event causing a blackout, if any.
func (c *Calendar) Blocking(instrument string, now time.Time) (Event, bool) {
	in, err := market.ParseInstrument(instrument)
	if err != nil {
		return Event{}, false
	}
	from, to := now.Add(-c.Window), now.Add(c.Window)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.events {
		if e.Time.Before(from) {
			continue
		}
		if e.Time.After(to) {
			break
		}
		if e.RiskLevel() != ImpactHigh {
			continue
		}
		if slices.Contains(in.Currencies(), e.Currency) {
			return e, true
		}
	}
	return Event{}, false
}

// Upcoming lists high-impact events in [now, now+horizon].
func (c *Calendar) Upcoming(now time.Time, horizon time.Duration) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Event
	for _, e := range c.events {
		if e.Time.Before(now) || e.Time.After(now.Add(horizon)) {
			continue
		}
		if e.RiskLevel() == ImpactHigh {
			out = append(out, e)
		}
	}
	return out
}
