package oanda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T, mux *http.ServeMux) *Broker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	b, err := New(Config{AccountID: "001-001", Token: "test-token", BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestBaseURL(t *testing.T) {
	t.Parallel()

	u, err := BaseURL("practice", false)
	require.NoError(t, err)
	assert.Equal(t, PracticeURL, u)

	_, err = BaseURL("live", false)
	assert.ErrorIs(t, err, ErrLiveNotAllowed)

	u, err = BaseURL("LIVE", true)
	require.NoError(t, err)
	assert.Equal(t, LiveURL, u)

	_, err = BaseURL("paper", false)
	assert.Error(t, err)
}

func TestWireName(t *testing.T) {
	t.Parallel()

	w, err := WireName("eurusd")
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", w)
	assert.Equal(t, "XAUUSD", symbolName("XAU_USD"))
}

func TestTick(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/pricing", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instruments") == "USD_CHF" {
			writeJSON(w, 200, map[string]any{"prices": []any{
				map[string]any{"instrument": "USD_CHF", "tradeable": false, "bids": []any{}, "asks": []any{}},
			}})
			return
		}
		writeJSON(w, 200, map[string]any{"prices": []any{
			map[string]any{
				"instrument": "EUR_USD",
				"time":       "2024-01-02T10:00:00.000000000Z",
				"tradeable":  true,
				"bids":       []any{map[string]string{"price": "1.08501"}},
				"asks":       []any{map[string]string{"price": "1.08513"}},
			},
		}})
	})
	b := newTestBroker(t, mux)

	tick, err := b.Tick(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", tick.Instrument)
	assert.Equal(t, 1.08501, tick.Bid)
	assert.Equal(t, 1.08513, tick.Ask)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), tick.Time)

	_, err = b.Tick(context.Background(), "USDCHF")
	assert.ErrorIs(t, err, broker.ErrNoTick)
}

func TestSymbolMetaIsCached(t *testing.T) {
	t.Parallel()

	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/instruments", func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, 200, map[string]any{"instruments": []any{
			map[string]any{"name": "USD_JPY", "type": "CURRENCY", "displayPrecision": 3, "pipLocation": -2},
		}})
	})
	b := newTestBroker(t, mux)

	for i := 0; i < 2; i++ {
		m, err := b.SymbolMeta(context.Background(), "USDJPY")
		require.NoError(t, err)
		assert.Equal(t, 3, m.Digits)
		assert.InDelta(t, 0.001, m.Point, 1e-12)
		assert.Equal(t, market.StandardLot, m.ContractSize)
		assert.InDelta(t, 0.01, market.PipSize(m, market.ClassJPY), 1e-12)
	}
	assert.Equal(t, 1, calls)

	assert.Error(t, b.EnsureVisible(context.Background(), "EURNOK"))
}

func TestRecentCloses(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/instruments/GBP_USD/candles", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("count"))
		assert.Equal(t, "M1", r.URL.Query().Get("granularity"))
		assert.Equal(t, "M", r.URL.Query().Get("price"))
		writeJSON(w, 200, map[string]any{"candles": []any{
			map[string]any{"complete": true, "time": "t1", "mid": map[string]string{"c": "1.2701"}},
			map[string]any{"complete": true, "time": "t2", "mid": map[string]string{"c": "1.2705"}},
			map[string]any{"complete": false, "time": "t3", "mid": map[string]string{"c": "1.2703"}},
		}})
	})
	b := newTestBroker(t, mux)

	closes, err := b.RecentCloses(context.Background(), "GBPUSD", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.2701, 1.2705, 1.2703}, closes)

	_, err = b.RecentCloses(context.Background(), "GBPUSD", 0)
	assert.Error(t, err)
}

func TestSubmitOrder(t *testing.T) {
	t.Parallel()

	var got orderBody
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, 201, map[string]any{
			"orderFillTransaction": map[string]string{"id": "42", "price": "1.08513", "time": "2024-01-02T10:00:01Z"},
		})
	})
	b := newTestBroker(t, mux)

	res, err := b.SubmitOrder(context.Background(), broker.OrderRequest{
		Instrument:  "EURUSD",
		Direction:   market.Short,
		Lots:        0.05,
		StopPrice:   1.0863,
		TargetPrice: 1.08335,
		Tag:         "01HABC",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, 1.08513, res.Price)

	assert.Equal(t, "MARKET", got.Order.Type)
	assert.Equal(t, "EUR_USD", got.Order.Instrument)
	assert.Equal(t, "-5000", got.Order.Units)
	assert.Equal(t, "FOK", got.Order.TimeInForce)
	require.NotNil(t, got.Order.StopLossOnFill)
	assert.Equal(t, "1.0863", got.Order.StopLossOnFill.Price)
	assert.Equal(t, "1.08335", got.Order.TakeProfitOnFill.Price)
	assert.Equal(t, "01HABC", got.Order.ClientExtensions["tag"])
}

func TestSubmitOrderRejections(t *testing.T) {
	t.Parallel()

	status := 201
	var reply any
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, reply)
	})
	b := newTestBroker(t, mux)
	req := broker.OrderRequest{Instrument: "EURUSD", Direction: market.Long, Lots: 0.01}

	reply = map[string]any{"orderCancelTransaction": map[string]string{"reason": "INSUFFICIENT_MARGIN"}}
	_, err := b.SubmitOrder(context.Background(), req)
	var rej *broker.RejectError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "INSUFFICIENT_MARGIN", rej.Code)

	status = 400
	reply = map[string]any{"errorCode": "MARKET_HALTED", "errorMessage": "market halted"}
	_, err = b.SubmitOrder(context.Background(), req)
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "MARKET_HALTED", rej.Code)

	status = 503
	reply = map[string]any{"errorMessage": "down"}
	_, err = b.SubmitOrder(context.Background(), req)
	assert.ErrorIs(t, err, broker.ErrVenueUnavailable)
	assert.NotErrorIs(t, err, broker.ErrOrderRejected)
}

func TestAccountSummary(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"account": map[string]any{
			"id": "001-001", "currency": "USD", "balance": "1234.56", "openTradeCount": 3,
		}})
	})
	b := newTestBroker(t, mux)
	ctx := context.Background()

	require.NoError(t, b.Connect(ctx))
	bal, err := b.AccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1234.56, bal)
	n, err := b.OpenPositionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConnectUnauthorizedIsNotRetryable(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"errorMessage": "Insufficient authorization"})
	})
	b := newTestBroker(t, mux)

	err := b.Connect(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, broker.ErrVenueUnavailable)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.Status)
}

func TestClosedDeals(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/trades", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CLOSED", r.URL.Query().Get("state"))
		writeJSON(w, 200, map[string]any{"trades": []any{
			map[string]string{"id": "11", "instrument": "EUR_USD", "initialUnits": "2000", "realizedPL": "4.20", "state": "CLOSED", "closeTime": "2024-01-02T09:00:00Z"},
			map[string]string{"id": "12", "instrument": "XAU_USD", "initialUnits": "-1", "realizedPL": "-3.10", "state": "CLOSED", "closeTime": "2024-01-02T11:00:00Z"},
			map[string]string{"id": "10", "instrument": "EUR_USD", "initialUnits": "1000", "realizedPL": "1", "state": "CLOSED", "closeTime": "2023-12-01T09:00:00Z"},
		}})
	})
	b := newTestBroker(t, mux)

	to := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	deals, err := b.ClosedDeals(context.Background(), to.Add(-24*time.Hour), to)
	require.NoError(t, err)
	require.Len(t, deals, 2)

	assert.Equal(t, broker.RawDeal{
		Ticket: "11", Instrument: "EURUSD", Type: broker.DealTypeBuy, Volume: 0.02, Profit: 4.2,
		Time: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
	}, deals[0])
	assert.Equal(t, broker.DealTypeSell, deals[1].Type)
	assert.InDelta(t, 0.01, deals[1].Volume, 1e-12)
	assert.Equal(t, -3.1, deals[1].Profit)
}

func TestClosedDealsPagesBackToWindowStart(t *testing.T) {
	t.Parallel()

	trade := func(id, closeTime string) map[string]string {
		return map[string]string{"id": id, "instrument": "EUR_USD", "initialUnits": "1000", "realizedPL": "1", "state": "CLOSED", "closeTime": closeTime}
	}
	pages := map[string][]any{
		"":   {trade("14", "2024-01-02T11:00:00Z"), trade("13", "2024-01-02T10:00:00Z")},
		"13": {trade("12", "2024-01-01T13:00:00Z"), trade("11", "2024-01-01T09:00:00Z")},
		"11": {trade("10", "2023-12-31T09:00:00Z"), trade("9", "2023-12-30T09:00:00Z")},
	}

	var (
		mu    sync.Mutex
		asked []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/accounts/001-001/trades", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("count"))
		before := q.Get("beforeID")
		mu.Lock()
		asked = append(asked, before)
		mu.Unlock()

		page, ok := pages[before]
		if !ok {
			t.Errorf("unexpected page before %q", before)
		}
		writeJSON(w, 200, map[string]any{"trades": page})
	})
	b := newTestBroker(t, mux)
	b.tradesPage = 2

	to := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	deals, err := b.ClosedDeals(context.Background(), to.Add(-24*time.Hour), to)
	require.NoError(t, err)

	var ids []string
	for _, d := range deals {
		ids = append(ids, d.Ticket)
	}
	assert.Equal(t, []string{"14", "13", "12"}, ids)
	assert.Equal(t, []string{"", "13", "11"}, asked)
}
