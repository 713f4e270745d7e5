package oanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/autotrader/broker"
	"github.com/rustyeddy/autotrader/market"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string // practice|live
	AllowLive   bool
	AccountID   string
	Token       string
	BaseURL     string // overrides Environment when set
	Granularity string // candle size for RecentCloses, default M1
}

// Broker talks to one v20 account. Instruments are named "EURUSD" on the
// broker.Broker side and "EUR_USD" on the wire.
type Broker struct {
	client      *Client
	account     string
	granularity string
	tradesPage  int
	logger      *slog.Logger

	mu   sync.Mutex
	meta map[string]market.SymbolMeta
}

var _ broker.Broker = (*Broker)(nil)

func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Broker, error) {
	base := cfg.BaseURL
	if base == "" {
		var err error
		if base, err = BaseURL(cfg.Environment, cfg.AllowLive); err != nil {
			return nil, err
		}
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("oanda: missing account id")
	}
	if cfg.Granularity == "" {
		cfg.Granularity = "M1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		client:      &Client{BaseURL: base, Token: cfg.Token, HTTP: httpClient},
		account:     cfg.AccountID,
		granularity: cfg.Granularity,
		tradesPage:  maxTradesPage,
		logger:      logger.With(slog.String("component", "oanda")),
		meta:        make(map[string]market.SymbolMeta),
	}, nil
}

// WireName converts "EURUSD" to "EUR_USD".
func WireName(symbol string) (string, error) {
	in, err := market.ParseInstrument(symbol)
	if err != nil {
		return "", err
	}
	return in.Base + "_" + in.Quote, nil
}

func symbolName(wire string) string {
	return strings.ReplaceAll(wire, "_", "")
}

func (b *Broker) accountPath(suffix string) string {
	return "/v3/accounts/" + b.account + suffix
}

type accountSummary struct {
	Account struct {
		ID             string `json:"id"`
		Currency       string `json:"currency"`
		Balance        string `json:"balance"`
		OpenTradeCount int    `json:"openTradeCount"`
	} `json:"account"`
}

func (b *Broker) summary(ctx context.Context) (accountSummary, error) {
	var s accountSummary
	err := b.client.Get(ctx, b.accountPath("/summary"), nil, &s)
	return s, err
}

// Connect checks the token and account by reading the account summary.
func (b *Broker) Connect(ctx context.Context) error {
	s, err := b.summary(ctx)
	if err != nil {
		return fmt.Errorf("oanda connect: %w", err)
	}
	b.logger.InfoContext(ctx, "connected",
		slog.String("account", s.Account.ID),
		slog.String("currency", s.Account.Currency),
		slog.String("balance", s.Account.Balance),
	)
	return nil
}

// Disconnect is a no-op; v20 is stateless HTTP.
func (b *Broker) Disconnect(context.Context) error {
	return nil
}

type priceLevel struct {
	Price string `json:"price"`
}

type pricingResp struct {
	Prices []struct {
		Instrument string       `json:"instrument"`
		Time       string       `json:"time"`
		Tradeable  bool         `json:"tradeable"`
		Bids       []priceLevel `json:"bids"`
		Asks       []priceLevel `json:"asks"`
	} `json:"prices"`
}

func (b *Broker) Tick(ctx context.Context, instrument string) (market.Tick, error) {
	wire, err := WireName(instrument)
	if err != nil {
		return market.Tick{}, err
	}
	var pr pricingResp
	if err := b.client.Get(ctx, b.accountPath("/pricing"), map[string]string{"instruments": wire}, &pr); err != nil {
		return market.Tick{}, err
	}
	for _, p := range pr.Prices {
		if p.Instrument != wire || !p.Tradeable || len(p.Bids) == 0 || len(p.Asks) == 0 {
			continue
		}
		bid, err := strconv.ParseFloat(p.Bids[0].Price, 64)
		if err != nil {
			return market.Tick{}, fmt.Errorf("oanda %s bid: %w", wire, err)
		}
		ask, err := strconv.ParseFloat(p.Asks[0].Price, 64)
		if err != nil {
			return market.Tick{}, fmt.Errorf("oanda %s ask: %w", wire, err)
		}
		t, _ := time.Parse(time.RFC3339Nano, p.Time)
		return market.Tick{Instrument: symbolName(wire), Bid: bid, Ask: ask, Time: t}, nil
	}
	return market.Tick{}, fmt.Errorf("oanda %s: %w", wire, broker.ErrNoTick)
}

type instrumentsResp struct {
	Instruments []struct {
		Name             string `json:"name"`
		Type             string `json:"type"`
		DisplayPrecision int    `json:"displayPrecision"`
		PipLocation      int    `json:"pipLocation"`
	} `json:"instruments"`
}

func (b *Broker) SymbolMeta(ctx context.Context, instrument string) (market.SymbolMeta, error) {
	in, err := market.ParseInstrument(instrument)
	if err != nil {
		return market.SymbolMeta{}, err
	}
	b.mu.Lock()
	m, ok := b.meta[in.Symbol]
	b.mu.Unlock()
	if ok {
		return m, nil
	}

	wire := in.Base + "_" + in.Quote
	var ir instrumentsResp
	if err := b.client.Get(ctx, b.accountPath("/instruments"), map[string]string{"instruments": wire}, &ir); err != nil {
		return market.SymbolMeta{}, err
	}
	for _, i := range ir.Instruments {
		if i.Name != wire {
			continue
		}
		m = market.SymbolMeta{
			Point:        math.Pow10(-i.DisplayPrecision),
			Digits:       i.DisplayPrecision,
			ContractSize: in.ContractSize(),
			Visible:      true,
		}
		b.mu.Lock()
		b.meta[in.Symbol] = m
		b.mu.Unlock()
		return m, nil
	}
	return market.SymbolMeta{}, fmt.Errorf("oanda: instrument %s not offered on account", wire)
}

// EnsureVisible only confirms the account offers the instrument; v20 has
// no market watch to add it to.
func (b *Broker) EnsureVisible(ctx context.Context, instrument string) error {
	_, err := b.SymbolMeta(ctx, instrument)
	return err
}

type candlesResp struct {
	Candles []struct {
		Complete bool   `json:"complete"`
		Time     string `json:"time"`
		Mid      *struct {
			C string `json:"c"`
		} `json:"mid,omitempty"`
	} `json:"candles"`
}

// RecentCloses returns up to count mid closes, oldest first. The forming
// candle is included as the latest price.
func (b *Broker) RecentCloses(ctx context.Context, instrument string, count int) ([]float64, error) {
	wire, err := WireName(instrument)
	if err != nil {
		return nil, err
	}
	if count <= 0 || count > 5000 {
		return nil, fmt.Errorf("oanda: candle count %d out of range", count)
	}
	var cr candlesResp
	err = b.client.Get(ctx, "/v3/instruments/"+wire+"/candles", map[string]string{
		"count":       strconv.Itoa(count),
		"granularity": b.granularity,
		"price":       "M",
	}, &cr)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, 0, len(cr.Candles))
	for _, c := range cr.Candles {
		if c.Mid == nil {
			continue
		}
		v, err := strconv.ParseFloat(c.Mid.C, 64)
		if err != nil {
			return nil, fmt.Errorf("oanda %s close at %s: %w", wire, c.Time, err)
		}
		closes = append(closes, v)
	}
	return closes, nil
}

type onFill struct {
	Price string `json:"price"`
}

type orderBody struct {
	Order struct {
		Type             string            `json:"type"`
		Instrument       string            `json:"instrument"`
		Units            string            `json:"units"`
		TimeInForce      string            `json:"timeInForce"`
		PositionFill     string            `json:"positionFill"`
		StopLossOnFill   *onFill           `json:"stopLossOnFill,omitempty"`
		TakeProfitOnFill *onFill           `json:"takeProfitOnFill,omitempty"`
		ClientExtensions map[string]string `json:"clientExtensions,omitempty"`
	} `json:"order"`
}

type orderResp struct {
	OrderFillTransaction *struct {
		ID    string `json:"id"`
		Price string `json:"price"`
		Time  string `json:"time"`
	} `json:"orderFillTransaction"`
	OrderCancelTransaction *struct {
		Reason string `json:"reason"`
	} `json:"orderCancelTransaction"`
	OrderRejectTransaction *struct {
		RejectReason string `json:"rejectReason"`
	} `json:"orderRejectTransaction"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// SubmitOrder places a fill-or-kill market order with stop and target
// attached. v20 market orders carry no slippage in points, so Deviation is
// not sent.
func (b *Broker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	in, err := market.ParseInstrument(req.Instrument)
	if err != nil {
		return broker.OrderResult{}, err
	}
	if req.Direction == market.NoDirection {
		return broker.OrderResult{}, fmt.Errorf("oanda: order for %s has no direction", in)
	}
	units := decimal.NewFromFloat(req.Lots * in.ContractSize()).Round(0)
	if units.IsZero() {
		return broker.OrderResult{}, fmt.Errorf("oanda: %v lots of %s is zero units", req.Lots, in)
	}
	if req.Direction == market.Short {
		units = units.Neg()
	}

	var body orderBody
	body.Order.Type = "MARKET"
	body.Order.Instrument = in.Base + "_" + in.Quote
	body.Order.Units = units.String()
	body.Order.TimeInForce = "FOK"
	body.Order.PositionFill = "DEFAULT"
	if req.StopPrice > 0 {
		body.Order.StopLossOnFill = &onFill{Price: decimal.NewFromFloat(req.StopPrice).String()}
	}
	if req.TargetPrice > 0 {
		body.Order.TakeProfitOnFill = &onFill{Price: decimal.NewFromFloat(req.TargetPrice).String()}
	}
	if req.Tag != "" {
		body.Order.ClientExtensions = map[string]string{"tag": req.Tag}
	}

	var resp orderResp
	err = b.client.Post(ctx, b.accountPath("/orders"), body, &resp)
	var se *StatusError
	if !errors.Is(err, broker.ErrVenueUnavailable) && errors.As(err, &se) {
		code := se.Code
		if code == "" {
			code = strconv.Itoa(se.Status)
		}
		return broker.OrderResult{}, &broker.RejectError{Code: code, Detail: se.Message}
	}
	if err != nil {
		return broker.OrderResult{}, err
	}

	switch {
	case resp.OrderFillTransaction != nil:
		fill := resp.OrderFillTransaction
		price, _ := strconv.ParseFloat(fill.Price, 64)
		t, _ := time.Parse(time.RFC3339Nano, fill.Time)
		return broker.OrderResult{OrderID: fill.ID, Price: price, Time: t}, nil
	case resp.OrderCancelTransaction != nil:
		return broker.OrderResult{}, &broker.RejectError{Code: resp.OrderCancelTransaction.Reason, Detail: "order cancelled"}
	case resp.OrderRejectTransaction != nil:
		return broker.OrderResult{}, &broker.RejectError{Code: resp.OrderRejectTransaction.RejectReason, Detail: "order rejected"}
	default:
		return broker.OrderResult{}, &broker.RejectError{Code: resp.ErrorCode, Detail: "no fill in response"}
	}
}

func (b *Broker) OpenPositionCount(ctx context.Context) (int, error) {
	s, err := b.summary(ctx)
	if err != nil {
		return 0, err
	}
	return s.Account.OpenTradeCount, nil
}

func (b *Broker) AccountBalance(ctx context.Context) (float64, error) {
	s, err := b.summary(ctx)
	if err != nil {
		return 0, err
	}
	bal, err := strconv.ParseFloat(s.Account.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("oanda balance %q: %w", s.Account.Balance, err)
	}
	return bal, nil
}

type tradesResp struct {
	Trades []struct {
		ID           string `json:"id"`
		Instrument   string `json:"instrument"`
		InitialUnits string `json:"initialUnits"`
		RealizedPL   string `json:"realizedPL"`
		State        string `json:"state"`
		CloseTime    string `json:"closeTime"`
	} `json:"trades"`
}

// maxTradesPage is the largest count the v20 trades endpoint accepts.
const maxTradesPage = 500

// ClosedDeals lists closed trades whose close time is in [from, to]. The
// v20 trade id is the deal ticket; the sign of the initial units gives the
// deal type. Trades come newest id first, so pages are walked with beforeID
// until a page holds nothing closed at or after from.
func (b *Broker) ClosedDeals(ctx context.Context, from, to time.Time) ([]broker.RawDeal, error) {
	params := map[string]string{
		"state": "CLOSED",
		"count": strconv.Itoa(b.tradesPage),
	}

	var out []broker.RawDeal
	for pages := 1; ; pages++ {
		var tr tradesResp
		if err := b.client.Get(ctx, b.accountPath("/trades"), params, &tr); err != nil {
			return nil, err
		}

		recent := false
		for _, t := range tr.Trades {
			closed, err := time.Parse(time.RFC3339Nano, t.CloseTime)
			if err != nil {
				continue
			}
			if !closed.Before(from) {
				recent = true
			}
			if closed.Before(from) || closed.After(to) {
				continue
			}
			d, err := closedDeal(t.ID, t.Instrument, t.InitialUnits, t.RealizedPL, closed)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}

		if len(tr.Trades) < b.tradesPage || !recent {
			b.logger.DebugContext(ctx, "closed trades listed",
				slog.Int("pages", pages),
				slog.Int("deals", len(out)),
			)
			return out, nil
		}
		params["beforeID"] = tr.Trades[len(tr.Trades)-1].ID
	}
}

func closedDeal(tradeID, instrument, initialUnits, realizedPL string, closed time.Time) (broker.RawDeal, error) {
	units, err := strconv.ParseFloat(initialUnits, 64)
	if err != nil {
		return broker.RawDeal{}, fmt.Errorf("oanda trade %s units %q: %w", tradeID, initialUnits, err)
	}
	pl, err := strconv.ParseFloat(realizedPL, 64)
	if err != nil {
		return broker.RawDeal{}, fmt.Errorf("oanda trade %s pl %q: %w", tradeID, realizedPL, err)
	}

	symbol := symbolName(instrument)
	typ := broker.DealTypeBuy
	if units < 0 {
		typ = broker.DealTypeSell
	}
	contract := market.StandardLot
	if in, err := market.ParseInstrument(symbol); err == nil {
		contract = in.ContractSize()
	}
	return broker.RawDeal{
		Ticket:     tradeID,
		Instrument: symbol,
		Type:       typ,
		Volume:     math.Abs(units) / contract,
		Profit:     pl,
		Time:       closed,
	}, nil
}
