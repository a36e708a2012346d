package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"rigged/internal/store"
)

type catalogEntry struct {
	Ticker   string
	Name     string
	Category string
	Price    string
}

// seedCatalog is the fixed set of synthetic listings the game market starts
// from.
var seedCatalog = []catalogEntry{
	{"COBOLT", "Cobalt Dynamics", "technology", "130.00"},
	{"NIMBUS", "Nimbus Labs", "technology", "95.00"},
	{"RUSTIC", "Rustic Systems", "technology", "115.00"},
	{"PYLONS", "Pylon Networks", "infrastructure", "80.00"},
	{"JAVOLT", "Javolt Cloud", "technology", "105.00"},
	{"SWIFTR", "Swiftr Mobile", "technology", "150.00"},
	{"QUARKX", "Quarkx Compute", "technology", "135.00"},
	{"VECTRA", "Vectra AI", "technology", "165.00"},
	{"DATUMX", "Datumx Data", "technology", "85.00"},
	{"CYBRON", "Cybron Secure", "security", "140.00"},
	{"FUSION", "Fusion Grid", "energy", "110.00"},
	{"NEBULA", "Nebula Energy", "energy", "92.00"},
	{"ORBITZ", "Orbitz Space", "aerospace", "180.00"},
	{"ZENITH", "Zenith Retail", "retail", "75.00"},
	{"ARCANE", "Arcane Finance", "finance", "145.00"},
	{"LUMINA", "Lumina Health", "healthcare", "102.00"},
}

// Seed inserts the synthetic catalog into the in-game collection. A
// non-empty collection is left alone so repeated invocations stay harmless.
// Document identifiers are derived from the ticker, which keeps concurrent
// seeds from doubling up listings.
func (p *Pipelines) Seed(ctx context.Context) (Summary, error) {
	if err := p.cfg.Validate(); err != nil {
		return Summary{}, err
	}
	st := p.cfg.Store

	existing, err := p.store.ListDocuments(ctx, st.DatabaseID, st.GameCollectionID)
	if err != nil {
		return Summary{}, fmt.Errorf("list in-game stocks: %w", err)
	}
	if len(existing) > 0 {
		return Summary{Skipped: len(existing), Message: "in-game collection already seeded"}, nil
	}

	now := time.Now()
	summary := Summary{Processed: len(seedCatalog)}
	var mu sync.Mutex
	summary.Failed = p.runBatches(ctx, len(seedCatalog), func(ctx context.Context, i int) error {
		entry := seedCatalog[i]
		fields := map[string]any{
			store.FieldTicker:      entry.Ticker,
			store.FieldName:        entry.Name,
			store.FieldCategory:    entry.Category,
			store.FieldPrice:       entry.Price,
			store.FieldLastChange:  "0",
			store.FieldLastUpdated: now.UTC().Format(time.RFC3339),
		}
		if _, err := p.store.CreateDocument(ctx, st.DatabaseID, st.GameCollectionID, strings.ToLower(entry.Ticker), fields); err != nil {
			return fmt.Errorf("seed %s: %w", entry.Ticker, err)
		}
		mu.Lock()
		summary.Created++
		mu.Unlock()
		return nil
	})

	p.log.Info("seed complete", "created", summary.Created, "failed", summary.Failed)
	return summary, nil
}
