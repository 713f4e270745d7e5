package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/broker/brokertest"
	"github.com/rustyeddy/autotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDealDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ     broker.DealType
		want    market.Direction
		wantErr bool
	}{
		{broker.DealTypeBuy, market.Long, false},
		{broker.DealTypeSell, market.Short, false},
		{2, market.NoDirection, true},  // balance
		{-1, market.NoDirection, true}, // garbage
	}
	for _, tt := range tests {
		got, err := broker.RawDeal{Ticket: "7", Type: tt.typ}.Direction()
		assert.Equal(t, tt.want, got)
		if tt.wantErr {
			assert.ErrorIs(t, err, broker.ErrUnknownDealDirection)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestRejectErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	var err error = &broker.RejectError{Code: "10019", Detail: "no money"}
	assert.ErrorIs(t, err, broker.ErrOrderRejected)
	assert.NotErrorIs(t, err, broker.ErrVenueUnavailable)
	assert.Equal(t, "order rejected (10019): no money", err.Error())

	wrapped := broker.Unavailable("tick", errors.New("eof"))
	assert.ErrorIs(t, wrapped, broker.ErrVenueUnavailable)
	assert.Same(t, wrapped, broker.Unavailable("again", wrapped))
}

// flaky fails the first n calls of each read with ErrVenueUnavailable and
// can block SubmitOrder until its context ends.
type flaky struct {
	*brokertest.Fake
	mu          sync.Mutex
	failFirst   int
	tickCalls   int
	blockSubmit bool
	submitCalls int
}

func (f *flaky) Tick(ctx context.Context, instrument string) (market.Tick, error) {
	f.mu.Lock()
	f.tickCalls++
	n := f.tickCalls
	f.mu.Unlock()
	if n <= f.failFirst {
		return market.Tick{}, broker.Unavailable("tick", errors.New("connection reset"))
	}
	return f.Fake.Tick(ctx, instrument)
}

func (f *flaky) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	f.mu.Lock()
	f.submitCalls++
	f.mu.Unlock()
	if f.blockSubmit {
		<-ctx.Done()
		return broker.OrderResult{}, ctx.Err()
	}
	return f.Fake.SubmitOrder(ctx, req)
}

func fastGuard() broker.GuardConfig {
	cfg := broker.GuardDefaults()
	cfg.BackoffMin = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	cfg.CallTimeout = 50 * time.Millisecond
	cfg.SubmitsPerSec = 0
	return cfg
}

func TestGuardedRetriesReads(t *testing.T) {
	t.Parallel()

	inner := &flaky{Fake: brokertest.New().WithFX("EURUSD", 1.1, 1.1001, nil), failFirst: 2}
	g := broker.NewGuarded(inner, fastGuard(), nil)

	tick, err := g.Tick(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, tick.Bid)
	assert.Equal(t, 3, inner.tickCalls)
}

func TestGuardedGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	inner := &flaky{Fake: brokertest.New().WithFX("EURUSD", 1.1, 1.1001, nil), failFirst: 100}
	cfg := fastGuard()
	cfg.Retries = 2
	g := broker.NewGuarded(inner, cfg, nil)

	_, err := g.Tick(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, broker.ErrVenueUnavailable)
	assert.Equal(t, 3, inner.tickCalls)
}

func TestGuardedDoesNotRetryNoTick(t *testing.T) {
	t.Parallel()

	fake := brokertest.New()
	g := broker.NewGuarded(fake, fastGuard(), nil)

	_, err := g.Tick(context.Background(), "USDCHF")
	assert.ErrorIs(t, err, broker.ErrNoTick)
	assert.Equal(t, 1, fake.CallCount("Tick"))
}

func TestGuardedSubmitTimeoutIsUnavailableAndNotRetried(t *testing.T) {
	t.Parallel()

	inner := &flaky{Fake: brokertest.New().WithFX("EURUSD", 1.1, 1.1001, nil), blockSubmit: true}
	g := broker.NewGuarded(inner, fastGuard(), nil)

	_, err := g.SubmitOrder(context.Background(), broker.OrderRequest{Instrument: "EURUSD", Direction: market.Long, Lots: 0.01})
	assert.ErrorIs(t, err, broker.ErrVenueUnavailable)
	assert.Equal(t, 1, inner.submitCalls)
}

func TestGuardedSubmitPassesRejection(t *testing.T) {
	t.Parallel()

	fake := brokertest.New().WithFX("EURUSD", 1.1, 1.1001, nil)
	fake.RejectAt[1] = &broker.RejectError{Code: "10016", Detail: "invalid stops"}
	g := broker.NewGuarded(fake, fastGuard(), nil)

	_, err := g.SubmitOrder(context.Background(), broker.OrderRequest{Instrument: "EURUSD", Direction: market.Long, Lots: 0.01})
	var rej *broker.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "10016", rej.Code)
	assert.Equal(t, 1, fake.SubmitAttempts())
}

func TestGuardedRateLimitsSubmissionsPerInstrument(t *testing.T) {
	t.Parallel()

	fake := brokertest.New().
		WithFX("EURUSD", 1.1, 1.1001, nil).
		WithFX("GBPUSD", 1.3, 1.3001, nil)
	cfg := fastGuard()
	cfg.SubmitsPerSec = 10 // one token per 100ms
	g := broker.NewGuarded(fake, cfg, nil)
	ctx := context.Background()

	start := time.Now()
	_, err := g.SubmitOrder(ctx, broker.OrderRequest{Instrument: "EURUSD", Lots: 0.01, Direction: market.Long})
	require.NoError(t, err)
	_, err = g.SubmitOrder(ctx, broker.OrderRequest{Instrument: "GBPUSD", Lots: 0.01, Direction: market.Long})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 80*time.Millisecond, "different instruments do not share a bucket")

	_, err = g.SubmitOrder(ctx, broker.OrderRequest{Instrument: "EURUSD", Lots: 0.01, Direction: market.Long})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestFakeClosedDealsWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	fake := brokertest.New()
	fake.SetDeals(
		broker.RawDeal{Ticket: "old", Time: now.Add(-48 * time.Hour)},
		broker.RawDeal{Ticket: "new", Time: now.Add(-time.Hour)},
	)
	deals, err := fake.ClosedDeals(context.Background(), now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "new", deals[0].Ticket)
}
