package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10*time.Second, cfg.Trading.ScanInterval.D())
	assert.Equal(t, time.Hour, cfg.Trading.LossCooldown.D())
	assert.Equal(t, 0.20, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 50.0, cfg.Risk.SmallAccountThreshold)
	assert.Equal(t, 30, cfg.Signals.MinWindow)
	assert.Equal(t, 500.0, cfg.Trading.Locks["XAUUSD"])
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad currency", func(c *Config) { c.Account.Currency = "US" }, "account.currency"},
		{"no instruments", func(c *Config) { c.Trading.Instruments = nil }, "trading.instruments is required"},
		{"bad instrument", func(c *Config) { c.Trading.Instruments = []string{"GOLD"} }, "trading.instruments"},
		{"zero scan", func(c *Config) { c.Trading.ScanInterval = 0 }, "scan_interval"},
		{"max open", func(c *Config) { c.Trading.MaxOpenTrades = 0 }, "max_open_trades"},
		{"layers", func(c *Config) { c.Trading.MaxLayers = 0 }, "max_layers"},
		{"window too short", func(c *Config) { c.Trading.PriceWindow = 10 }, "price_window"},
		{"daily loss", func(c *Config) { c.Risk.MaxDailyLossPct = 1.5 }, "max_daily_loss_pct"},
		{"risk pct", func(c *Config) { c.Risk.DefaultRiskFraction = 0 }, "default_risk_pct"},
		{"lots", func(c *Config) { c.Risk.MinLot, c.Risk.MaxLot = 1, 0.5 }, "min_lot"},
		{"periods", func(c *Config) { c.Signals.SlowPeriod = c.Signals.FastPeriod }, "fast_period"},
		{"rsi bands", func(c *Config) { c.Signals.Oversold = 80 }, "oversold"},
		{"backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"timezone", func(c *Config) { c.Storage.Timezone = "Mars/Olympus" }, "storage.timezone"},
		{"live without allow", func(c *Config) { c.Venue.Environment = "live" }, "allow_live"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	live := Default()
	live.Venue.Environment = "live"
	live.Venue.AllowLive = true
	assert.NoError(t, live.Validate())
}

func TestSaveAndLoadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "autotrader.yaml")
	cfg := Default()
	cfg.Trading.Instruments = []string{"EURUSD"}
	cfg.Trading.LayerDelay = Duration(250 * time.Millisecond)
	cfg.Venue.Token = "secret"
	require.NoError(t, cfg.SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "layer_delay: 250ms")
	assert.Contains(t, string(data), "small_account_threshold: 50")
	assert.NotContains(t, string(data), "secret")

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD"}, loaded.Trading.Instruments)
	assert.Equal(t, 250*time.Millisecond, loaded.Trading.LayerDelay.D())
	assert.Equal(t, cfg.Risk, loaded.Risk)
	assert.Equal(t, cfg.Signals, loaded.Signals)
	assert.Empty(t, loaded.Venue.Token)
}

func TestSaveAndLoadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "autotrader.json")
	require.NoError(t, Default().SaveToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scan_interval": "10s"`)
	assert.Contains(t, string(data), `"default_risk_pct": 0.02`)

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Trading, loaded.Trading)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "small.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
trading:
  instruments: [EURUSD, GBPJPY]
  max_layers: 2
risk:
  max_daily_loss_pct: 0.1
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"EURUSD", "GBPJPY"}, cfg.Trading.Instruments)
	assert.Equal(t, 2, cfg.Trading.MaxLayers)
	assert.Equal(t, 0.1, cfg.Risk.MaxDailyLossPct)
	assert.Equal(t, 5, cfg.Trading.MaxOpenTrades)
	assert.Equal(t, 0.03, cfg.Risk.SmallAccountRiskFraction)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("trading:\n  scan_interval: soon\n"), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("storage:\n  backend: redis\n"), 0o644))
	_, err = LoadFromFile(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"AUTOTRADER_OANDA_TOKEN":      "tok",
		"AUTOTRADER_OANDA_ACCOUNT_ID": "101-001",
		"AUTOTRADER_TELEGRAM_TOKEN":   "bot",
		"AUTOTRADER_TELEGRAM_CHAT_ID": "-100123",
		"AUTOTRADER_INSTRUMENTS":      "EURUSD, USDJPY ,",
		"AUTOTRADER_LOG_LEVEL":        "debug",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, "tok", cfg.Venue.Token)
	assert.Equal(t, "101-001", cfg.Venue.AccountID)
	assert.Equal(t, "bot", cfg.Notify.TelegramToken)
	assert.Equal(t, int64(-100123), cfg.Notify.TelegramChatID)
	assert.Equal(t, []string{"EURUSD", "USDJPY"}, cfg.Trading.Instruments)
	assert.Equal(t, "debug", cfg.Log.Level)

	env = map[string]string{"OANDA_TOKEN": "legacy", "AUTOTRADER_TELEGRAM_CHAT_ID": "abc"}
	cfg = Default()
	err := cfg.ApplyEnv(lookup)
	assert.Error(t, err)
	assert.Equal(t, "legacy", cfg.Venue.Token)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("AUTOTRADER_TEST_ONLY_KEY=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("AUTOTRADER_TEST_ONLY_KEY") })

	require.NoError(t, LoadEnvFiles(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("AUTOTRADER_TEST_ONLY_KEY"))
}

func TestDurationRejectsNumbers(t *testing.T) {
	t.Parallel()

	var d Duration
	assert.Error(t, d.UnmarshalJSON([]byte(`10`)))
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.D())
}
