package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rustyeddy/autotrader/market"
	"github.com/rustyeddy/autotrader/risk"
	"github.com/rustyeddy/autotrader/strategies"
	"gopkg.in/yaml.v3"
)

// Config is everything the trading process reads at startup.
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Trading   TradingConfig   `json:"trading" yaml:"trading"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Signals   SignalsConfig   `json:"signals" yaml:"signals"`
	News      NewsConfig      `json:"news" yaml:"news"`
	Reconcile ReconcileConfig `json:"reconcile" yaml:"reconcile"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Venue     VenueConfig     `json:"venue" yaml:"venue"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

type AccountConfig struct {
	Currency string `json:"currency" yaml:"currency"`
}

type TradingConfig struct {
	Instruments     []string           `json:"instruments" yaml:"instruments"`
	ScanInterval    Duration           `json:"scan_interval" yaml:"scan_interval"`
	LossCooldown    Duration           `json:"loss_cooldown" yaml:"loss_cooldown"`
	MaxSpreadPips   float64            `json:"max_spread_pips" yaml:"max_spread_pips"`
	MaxOpenTrades   int                `json:"max_open_trades" yaml:"max_open_trades"`
	MaxLayers       int                `json:"max_layers" yaml:"max_layers"`
	LayerDelay      Duration           `json:"layer_delay" yaml:"layer_delay"`
	InstrumentDelay Duration           `json:"instrument_delay" yaml:"instrument_delay"`
	Deviation       int                `json:"deviation" yaml:"deviation"`
	PriceWindow     int                `json:"price_window" yaml:"price_window"`
	StopFloorPips   float64            `json:"stop_floor_pips" yaml:"stop_floor_pips"`
	ATRMultiplier   float64            `json:"atr_multiplier" yaml:"atr_multiplier"`
	RewardRisk      float64            `json:"reward_risk" yaml:"reward_risk"`
	Locks           map[string]float64 `json:"locks,omitempty" yaml:"locks,omitempty"` // instrument -> min balance
}

type RiskConfig struct {
	risk.Selector    `yaml:",inline"`
	MaxDailyLossPct  float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	LossWarningRatio float64 `json:"loss_warning_ratio" yaml:"loss_warning_ratio"`
	MinLot           float64 `json:"min_lot" yaml:"min_lot"`
	MaxLot           float64 `json:"max_lot" yaml:"max_lot"`
}

type SignalsConfig struct {
	strategies.IndicatorConfig `yaml:",inline"`
	strategies.Rules           `yaml:",inline"`
}

type NewsConfig struct {
	CalendarFile string   `json:"calendar_file,omitempty" yaml:"calendar_file,omitempty"`
	Window       Duration `json:"window" yaml:"window"`
}

type ReconcileConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
	Lookback Duration `json:"lookback" yaml:"lookback"`
}

type StorageConfig struct {
	Backend    string `json:"backend" yaml:"backend"` // "sqlite" or "files"
	Dir        string `json:"dir" yaml:"dir"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradeLog   string `json:"trade_log,omitempty" yaml:"trade_log,omitempty"`
	LedgerFile string `json:"ledger_file,omitempty" yaml:"ledger_file,omitempty"`
	SeenFile   string `json:"seen_file,omitempty" yaml:"seen_file,omitempty"`
	Timezone   string `json:"timezone" yaml:"timezone"`
}

type VenueConfig struct {
	Environment   string   `json:"environment" yaml:"environment"` // practice|live
	AllowLive     bool     `json:"allow_live" yaml:"allow_live"`
	AccountID     string   `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Token         string   `json:"-" yaml:"-"` // env only
	CallTimeout   Duration `json:"call_timeout" yaml:"call_timeout"`
	Retries       int      `json:"retries" yaml:"retries"`
	SubmitsPerSec float64  `json:"submits_per_sec" yaml:"submits_per_sec"`
}

type NotifyConfig struct {
	TelegramToken  string   `json:"-" yaml:"-"` // env only
	TelegramChatID int64    `json:"telegram_chat_id,omitempty" yaml:"telegram_chat_id,omitempty"`
	Events         []string `json:"events,omitempty" yaml:"events,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a configuration that validates as is.
func Default() *Config {
	return &Config{
		Account: AccountConfig{Currency: "USD"},
		Trading: TradingConfig{
			Instruments:     []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"},
			ScanInterval:    Duration(10 * time.Second),
			LossCooldown:    Duration(time.Hour),
			MaxSpreadPips:   2.0,
			MaxOpenTrades:   5,
			MaxLayers:       3,
			LayerDelay:      Duration(300 * time.Millisecond),
			InstrumentDelay: Duration(500 * time.Millisecond),
			Deviation:       10,
			PriceWindow:     60,
			StopFloorPips:   5,
			ATRMultiplier:   1.5,
			RewardRisk:      1.5,
			Locks:           map[string]float64{"XAUUSD": 500},
		},
		Risk: RiskConfig{
			Selector:         risk.SelectorDefaults(),
			MaxDailyLossPct:  0.20,
			LossWarningRatio: 0.80,
			MinLot:           0.01,
			MaxLot:           1.00,
		},
		Signals: SignalsConfig{
			IndicatorConfig: strategies.IndicatorConfigDefaults(),
			Rules:           strategies.RulesDefaults(),
		},
		News: NewsConfig{Window: Duration(time.Hour)},
		Reconcile: ReconcileConfig{
			Interval: Duration(time.Minute),
			Lookback: Duration(24 * time.Hour),
		},
		Storage: StorageConfig{
			Backend:  "sqlite",
			Dir:      "./data",
			Timezone: "UTC",
		},
		Venue: VenueConfig{
			Environment:   "practice",
			CallTimeout:   Duration(10 * time.Second),
			Retries:       3,
			SubmitsPerSec: 2,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadFromFile reads YAML or JSON on top of the defaults and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	if len(c.Account.Currency) != 3 {
		return fmt.Errorf("account.currency must be a 3 letter code")
	}

	t := c.Trading
	if len(t.Instruments) == 0 {
		return fmt.Errorf("trading.instruments is required")
	}
	for _, s := range t.Instruments {
		if _, err := market.ParseInstrument(s); err != nil {
			return fmt.Errorf("trading.instruments: %w", err)
		}
	}
	for s := range t.Locks {
		if _, err := market.ParseInstrument(s); err != nil {
			return fmt.Errorf("trading.locks: %w", err)
		}
	}
	if t.ScanInterval <= 0 {
		return fmt.Errorf("trading.scan_interval must be positive")
	}
	if t.LossCooldown <= 0 {
		return fmt.Errorf("trading.loss_cooldown must be positive")
	}
	if t.MaxSpreadPips <= 0 {
		return fmt.Errorf("trading.max_spread_pips must be positive")
	}
	if t.MaxOpenTrades < 1 {
		return fmt.Errorf("trading.max_open_trades must be at least 1")
	}
	if t.MaxLayers < 1 {
		return fmt.Errorf("trading.max_layers must be at least 1")
	}
	if t.LayerDelay < 0 || t.InstrumentDelay < 0 {
		return fmt.Errorf("trading delays must not be negative")
	}
	if t.StopFloorPips <= 0 {
		return fmt.Errorf("trading.stop_floor_pips must be positive")
	}
	if t.ATRMultiplier <= 0 {
		return fmt.Errorf("trading.atr_multiplier must be positive")
	}
	if t.RewardRisk <= 0 {
		return fmt.Errorf("trading.reward_risk must be positive")
	}
	if t.PriceWindow < c.Signals.MinWindow {
		return fmt.Errorf("trading.price_window %d is shorter than signals.min_window %d", t.PriceWindow, c.Signals.MinWindow)
	}

	r := c.Risk
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct > 1 {
		return fmt.Errorf("risk.max_daily_loss_pct must be between 0 and 1")
	}
	if r.LossWarningRatio < 0 || r.LossWarningRatio >= 1 {
		return fmt.Errorf("risk.loss_warning_ratio must be in [0, 1)")
	}
	if r.DefaultRiskFraction <= 0 || r.DefaultRiskFraction > 1 {
		return fmt.Errorf("risk.default_risk_pct must be between 0 and 1")
	}
	if r.SmallAccountRiskFraction <= 0 || r.SmallAccountRiskFraction > 1 {
		return fmt.Errorf("risk.small_account_risk_pct must be between 0 and 1")
	}
	if r.MinFixedRisk <= 0 {
		return fmt.Errorf("risk.small_account_min_risk must be positive")
	}
	if r.SmallAccountThreshold < 0 {
		return fmt.Errorf("risk.small_account_threshold must not be negative")
	}
	if r.MinLot <= 0 || r.MaxLot < r.MinLot {
		return fmt.Errorf("risk lots must satisfy 0 < min_lot <= max_lot")
	}

	s := c.Signals
	if s.FastPeriod < 1 || s.SlowPeriod <= s.FastPeriod {
		return fmt.Errorf("signals periods must satisfy 0 < fast_period < slow_period")
	}
	if s.RSIPeriod < 1 || s.ATRPeriod < 1 || s.ADXPeriod < 1 {
		return fmt.Errorf("signals rsi/atr/adx periods must be positive")
	}
	if s.Oversold >= s.Overbought {
		return fmt.Errorf("signals.oversold must be below signals.overbought")
	}

	if c.News.Window < 0 {
		return fmt.Errorf("news.window must not be negative")
	}
	if c.Reconcile.Interval <= 0 || c.Reconcile.Lookback <= 0 {
		return fmt.Errorf("reconcile interval and lookback must be positive")
	}

	switch c.Storage.Backend {
	case "sqlite", "files":
	default:
		return fmt.Errorf("storage.backend must be 'sqlite' or 'files'")
	}
	if _, err := time.LoadLocation(c.Storage.Timezone); err != nil {
		return fmt.Errorf("storage.timezone: %w", err)
	}

	switch strings.ToLower(c.Venue.Environment) {
	case "practice", "demo":
	case "live":
		if !c.Venue.AllowLive {
			return fmt.Errorf("venue.environment is live but venue.allow_live is not set")
		}
	default:
		return fmt.Errorf("venue.environment must be 'practice' or 'live'")
	}
	if c.Venue.CallTimeout <= 0 {
		return fmt.Errorf("venue.call_timeout must be positive")
	}
	if c.Venue.Retries < 0 {
		return fmt.Errorf("venue.retries must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// Location is the timezone that decides the ledger's trading day.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Storage.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Path resolves a storage file name against Storage.Dir unless set
// explicitly.
func (s StorageConfig) Path(explicit, name string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(s.Dir, name)
}
