package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const EnvPrefix = "AUTOTRADER_"

// Load reads path (when not empty) over the defaults, then .env files and
// AUTOTRADER_* variables, then validates. Secrets only come from the
// environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads .env style files without overriding variables that
// are already set. Missing files are ignored.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv
// outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("OANDA_TOKEN"); ok {
		c.Venue.Token = v
	} else if v, ok := lookup("OANDA_TOKEN"); ok {
		c.Venue.Token = strings.TrimSpace(v)
	}
	if v, ok := get("OANDA_ACCOUNT_ID"); ok {
		c.Venue.AccountID = v
	}
	if v, ok := get("OANDA_ENV"); ok {
		c.Venue.Environment = v
	}
	if v, ok := get("ALLOW_LIVE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sALLOW_LIVE: %w", EnvPrefix, err)
		}
		c.Venue.AllowLive = b
	}
	if v, ok := get("TELEGRAM_TOKEN"); ok {
		c.Notify.TelegramToken = v
	}
	if v, ok := get("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sTELEGRAM_CHAT_ID: %w", EnvPrefix, err)
		}
		c.Notify.TelegramChatID = id
	}
	if v, ok := get("INSTRUMENTS"); ok {
		var list []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
		c.Trading.Instruments = list
	}
	if v, ok := get("STORAGE_DIR"); ok {
		c.Storage.Dir = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}
