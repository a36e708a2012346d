package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig() Config {
	var cfg Config
	cfg.Store = StoreConfig{
		Endpoint:                "https://store.example.com",
		ProjectID:               "proj",
		APIKey:                  "secret",
		DatabaseID:              "main",
		RealWorldCollectionID:   "realworld",
		ManipulatorCollectionID: "manipulator",
		GameCollectionID:        "game",
	}
	cfg.Quotes = QuotesConfig{APIKey: "demo"}
	return cfg
}

func TestValidateComplete(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config: %v", err)
	}
}

func TestValidateMissing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"store endpoint", func(c *Config) { c.Store.Endpoint = "" }, "RIGGED_STORE_ENDPOINT"},
		{"quotes api key", func(c *Config) { c.Quotes.APIKey = "" }, "RIGGED_QUOTES_API_KEY"},
		{"game collection", func(c *Config) { c.Store.GameCollectionID = " " }, "RIGGED_GAME_COLLECTION_ID"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var missing *MissingError
			if !errors.As(err, &missing) {
				t.Fatalf("expected MissingError, got %v", err)
			}
			if missing.Key != tc.key {
				t.Fatalf("key = %q want %q", missing.Key, tc.key)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("RIGGED_API_ADDR", "9090")
	t.Setenv("RIGGED_STORE_ENDPOINT", "https://store.example.com/")
	t.Setenv("RIGGED_QUOTES_WATCHLIST", "aapl, msft")
	t.Setenv("RIGGED_WORKER_TICK_EVERY", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Store.Endpoint != "https://store.example.com" {
		t.Fatalf("endpoint = %q, trailing slash should be trimmed", cfg.Store.Endpoint)
	}
	if len(cfg.Quotes.Watchlist) != 2 || cfg.Quotes.Watchlist[0] != "AAPL" || cfg.Quotes.Watchlist[1] != "MSFT" {
		t.Fatalf("watchlist = %v", cfg.Quotes.Watchlist)
	}
	if cfg.WorkerTickEvery != 5*time.Minute {
		t.Fatalf("tick every = %v", cfg.WorkerTickEvery)
	}
	if cfg.Pipeline.BatchSize != 10 || cfg.Pipeline.BatchDelay != 500*time.Millisecond {
		t.Fatalf("pipeline defaults = %+v", cfg.Pipeline)
	}
}
