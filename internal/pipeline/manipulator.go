package pipeline

import (
	"context"
	"fmt"
	"time"

	"rigged/internal/market"
	"rigged/internal/store"
)

// UpdateManipulator averages the stored real-world change percentages, runs
// them through the manipulation curve, and writes the result to the
// singleton document under its fixed identifier.
func (p *Pipelines) UpdateManipulator(ctx context.Context) (Summary, error) {
	if err := p.cfg.Validate(); err != nil {
		return Summary{}, err
	}
	st := p.cfg.Store

	docs, err := p.store.ListDocuments(ctx, st.DatabaseID, st.RealWorldCollectionID)
	if err != nil {
		return Summary{}, fmt.Errorf("list real-world documents: %w", err)
	}

	changes, skipped := store.ChangesFromDocuments(docs)
	if skipped > 0 {
		p.log.Warn("invalid real-world documents skipped", "skipped", skipped)
	}
	avg, err := market.AverageChange(changes)
	if err != nil {
		return Summary{Processed: len(docs), Skipped: skipped}, err
	}
	m := market.Manipulator(avg)

	_, err = p.store.PutDocument(ctx, st.DatabaseID, st.ManipulatorCollectionID,
		store.ManipulatorDocumentID, store.ManipulatorFields(m, time.Now()))
	if err != nil {
		return Summary{}, fmt.Errorf("put manipulator: %w", err)
	}

	p.log.Info("manipulator updated", "average_change", avg, "manipulator", m, "observations", len(changes))
	return Summary{
		Processed:     len(docs),
		Updated:       1,
		Skipped:       skipped,
		AverageChange: &avg,
		Manipulator:   &m,
	}, nil
}
