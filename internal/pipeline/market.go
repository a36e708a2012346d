package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rigged/internal/market"
	"rigged/internal/store"
)

// UpdateMarket applies the stored manipulator to every in-game stock and
// writes the perturbed prices back by each document's own identifier.
func (p *Pipelines) UpdateMarket(ctx context.Context) (Summary, error) {
	if err := p.cfg.Validate(); err != nil {
		return Summary{}, err
	}
	st := p.cfg.Store

	doc, err := p.store.GetDocument(ctx, st.DatabaseID, st.ManipulatorCollectionID, store.ManipulatorDocumentID)
	if err != nil {
		if store.IsNotFound(err) {
			return Summary{}, ErrManipulatorMissing
		}
		return Summary{}, fmt.Errorf("read manipulator: %w", err)
	}
	m, ok := store.ManipulatorValue(doc)
	if !ok {
		return Summary{}, fmt.Errorf("manipulator document %q carries no numeric value", doc.ID)
	}

	docs, err := p.store.ListDocuments(ctx, st.DatabaseID, st.GameCollectionID)
	if err != nil {
		return Summary{}, fmt.Errorf("list in-game stocks: %w", err)
	}
	if len(docs) == 0 {
		return Summary{}, ErrNoGameStocks
	}

	stocks := make([]market.Stock, len(docs))
	for i, d := range docs {
		stocks[i] = store.StockFromDocument(d)
	}
	applied, skipped, err := market.Apply(stocks, m)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Processed:   len(applied),
		Skipped:     skipped,
		Manipulator: &m,
	}

	now := time.Now()
	var mu sync.Mutex
	summary.Failed = p.runBatches(ctx, len(applied), func(ctx context.Context, i int) error {
		s := applied[i]
		if !s.Changed {
			return nil
		}
		if _, err := p.store.UpdateDocument(ctx, st.DatabaseID, st.GameCollectionID, s.ID, store.StockFields(s, now)); err != nil {
			return fmt.Errorf("update %s: %w", s.Ticker, err)
		}
		mu.Lock()
		summary.Updated++
		mu.Unlock()
		return nil
	})

	p.log.Info("market update complete",
		"manipulator", m,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary, nil
}
