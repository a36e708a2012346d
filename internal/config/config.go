package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr   string `envconfig:"RIGGED_API_ADDR" default:":8080"`
	APIKey string `envconfig:"RIGGED_API_KEY"`

	Store    StoreConfig
	Quotes   QuotesConfig
	Pipeline PipelineConfig

	WorkerTickEvery   time.Duration `envconfig:"RIGGED_WORKER_TICK_EVERY" default:"15m"`
	WorkerRunOnce     bool          `envconfig:"RIGGED_WORKER_RUN_ONCE" default:"false"`
	StartupSeedStocks bool          `envconfig:"RIGGED_STARTUP_SEED_STOCKS" default:"false"`
}

type StoreConfig struct {
	Endpoint                string `envconfig:"RIGGED_STORE_ENDPOINT"`
	ProjectID               string `envconfig:"RIGGED_STORE_PROJECT_ID"`
	APIKey                  string `envconfig:"RIGGED_STORE_API_KEY"`
	DatabaseID              string `envconfig:"RIGGED_STORE_DATABASE_ID"`
	RealWorldCollectionID   string `envconfig:"RIGGED_REALWORLD_COLLECTION_ID"`
	ManipulatorCollectionID string `envconfig:"RIGGED_MANIPULATOR_COLLECTION_ID"`
	GameCollectionID        string `envconfig:"RIGGED_GAME_COLLECTION_ID"`
}

type QuotesConfig struct {
	BaseURL           string        `envconfig:"RIGGED_QUOTES_BASE_URL" default:"https://www.alphavantage.co"`
	APIKey            string        `envconfig:"RIGGED_QUOTES_API_KEY"`
	Timeout           time.Duration `envconfig:"RIGGED_QUOTES_TIMEOUT" default:"10s"`
	RequestsPerSecond float64       `envconfig:"RIGGED_QUOTES_RPS" default:"0.5"`
	Watchlist         []string      `envconfig:"RIGGED_QUOTES_WATCHLIST"`
}

type PipelineConfig struct {
	BatchSize         int           `envconfig:"RIGGED_BATCH_SIZE" default:"10"`
	BatchDelay        time.Duration `envconfig:"RIGGED_BATCH_DELAY" default:"500ms"`
	FailoverThreshold int           `envconfig:"RIGGED_FAILOVER_THRESHOLD" default:"3"`
	SyntheticFallback bool          `envconfig:"RIGGED_SYNTHETIC_FALLBACK" default:"true"`
}

// MissingError reports a required environment setting that was not supplied.
// The API layer maps it to a 400; the worker and CLI treat it as fatal.
type MissingError struct {
	Key string
}

func (e *MissingError) Error() string {
	return e.Key + " is required"
}

// Load reads configuration from a .env file (when present) and the process
// environment. It does not check required settings; callers that need a
// complete configuration up front should call Validate as well.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}

	cfg.Addr = normalizeAddr(cfg.Addr)
	cfg.Store.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Store.Endpoint), "/")
	cfg.Quotes.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Quotes.BaseURL), "/")
	for i, s := range cfg.Quotes.Watchlist {
		cfg.Quotes.Watchlist[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return cfg, nil
}

// Validate reports the first missing required setting.
func (c Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"RIGGED_STORE_ENDPOINT", c.Store.Endpoint},
		{"RIGGED_STORE_PROJECT_ID", c.Store.ProjectID},
		{"RIGGED_STORE_API_KEY", c.Store.APIKey},
		{"RIGGED_STORE_DATABASE_ID", c.Store.DatabaseID},
		{"RIGGED_REALWORLD_COLLECTION_ID", c.Store.RealWorldCollectionID},
		{"RIGGED_MANIPULATOR_COLLECTION_ID", c.Store.ManipulatorCollectionID},
		{"RIGGED_GAME_COLLECTION_ID", c.Store.GameCollectionID},
		{"RIGGED_QUOTES_API_KEY", c.Quotes.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &MissingError{Key: r.key}
		}
	}
	return nil
}

func normalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8080"
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
