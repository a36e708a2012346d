// Package pipeline wires the quote client, the numeric core, and the store
// into the scheduled functions: scrape, manipulator update, market update,
// and seeding. Each run is a short linear pass with no intra-run retries.
package pipeline

import (
	"errors"
	"log/slog"
	"strings"

	"rigged/internal/config"
	"rigged/internal/quotes"
	"rigged/internal/store"
)

var (
	ErrManipulatorMissing = errors.New("manipulator has not been computed yet")
	ErrNoGameStocks       = errors.New("in-game collection is empty; run seed first")
)

// Summary is the per-run result reported in every function response.
type Summary struct {
	Processed     int      `json:"processed"`
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Skipped       int      `json:"skipped"`
	Failed        int      `json:"failed"`
	DataSource    string   `json:"data_source,omitempty"`
	AverageChange *float64 `json:"average_change,omitempty"`
	Manipulator   *float64 `json:"manipulator,omitempty"`
	Message       string   `json:"message,omitempty"`
}

type Pipelines struct {
	cfg    config.Config
	log    *slog.Logger
	store  *store.Client
	quotes *quotes.Client
}

func New(cfg config.Config, logger *slog.Logger) *Pipelines {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipelines{
		cfg:    cfg,
		log:    logger,
		store:  store.NewClient(cfg.Store.Endpoint, cfg.Store.ProjectID, cfg.Store.APIKey),
		quotes: quotes.NewClient(cfg.Quotes.BaseURL, cfg.Quotes.APIKey, cfg.Quotes.Timeout, cfg.Quotes.RequestsPerSecond),
	}
}

// WithStoreKey returns pipelines whose store operations authenticate with
// key instead of the configured one. A blank key keeps the original.
func (p *Pipelines) WithStoreKey(key string) *Pipelines {
	if strings.TrimSpace(key) == "" {
		return p
	}
	cp := *p
	cp.store = p.store.WithKey(key)
	return &cp
}
