package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rigged/internal/quotes"
	"rigged/internal/store"
)

// DefaultWatchlist is used for per-symbol scans when no watchlist is
// configured and the market-wide scan is unavailable.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA",
	"TSLA", "META", "JPM", "V", "UNH",
}

// Scrape fetches external quotes and upserts them into the real-world
// collection keyed by ticker. With a configured watchlist it walks the
// symbols one by one under the request budget, falling back to synthetic
// data after repeated provider failures; without one it takes the
// market-wide most-active scan.
func (p *Pipelines) Scrape(ctx context.Context) (Summary, error) {
	if err := p.cfg.Validate(); err != nil {
		return Summary{}, err
	}

	fetched, source, failedFetches, err := p.fetchQuotes(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(fetched) == 0 {
		return Summary{Failed: failedFetches, DataSource: source}, errors.New("no quotes fetched")
	}

	records := make([]store.RealQuote, 0, len(fetched))
	for _, q := range fetched {
		records = append(records, normalizeQuote(q))
	}

	summary := Summary{
		Processed:  len(records),
		Failed:     failedFetches,
		DataSource: source,
	}

	now := time.Now()
	var mu sync.Mutex
	summary.Failed += p.runBatches(ctx, len(records), func(ctx context.Context, i int) error {
		created, err := p.upsertRealQuote(ctx, records[i], now)
		if err != nil {
			return err
		}
		mu.Lock()
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
		mu.Unlock()
		return nil
	})

	p.log.Info("scrape complete",
		"processed", summary.Processed,
		"created", summary.Created,
		"updated", summary.Updated,
		"failed", summary.Failed,
		"source", summary.DataSource)
	return summary, nil
}

func normalizeQuote(q quotes.Quote) store.RealQuote {
	name := q.Name
	if strings.TrimSpace(name) == "" {
		name = q.Ticker
	}
	category := q.Category
	if strings.TrimSpace(category) == "" {
		category = "stock"
	}
	return store.RealQuote{
		Ticker:           strings.ToUpper(strings.TrimSpace(q.Ticker)),
		Name:             name,
		Category:         category,
		Price:            q.Price,
		ChangeAmount:     q.ChangeAmount,
		ChangePercentage: q.ChangePercentage,
		Volume:           q.Volume,
		RawData:          q.Raw,
	}
}

func (p *Pipelines) fetchQuotes(ctx context.Context) (fetched []quotes.Quote, source string, failed int, err error) {
	watchlist := p.cfg.Quotes.Watchlist
	if len(watchlist) == 0 {
		qs, err := p.quotes.TopMovers(ctx)
		if err == nil {
			return qs, "live", 0, nil
		}
		if errors.Is(err, quotes.ErrRateLimited) || !p.cfg.Pipeline.SyntheticFallback {
			return nil, "live", 0, fmt.Errorf("fetch top movers: %w", err)
		}
		p.log.Warn("market scan failed, serving synthetic quotes", "err", err)
		watchlist = DefaultWatchlist
		synthetic := quotes.NewSyntheticSource(0)
		for _, symbol := range watchlist {
			q, err := synthetic.Quote(ctx, symbol)
			if err != nil {
				failed++
				continue
			}
			fetched = append(fetched, q)
		}
		return fetched, "synthetic", failed, nil
	}

	var src quotes.Source = p.quotes
	var failover *quotes.FailoverSource
	if p.cfg.Pipeline.SyntheticFallback {
		failover = quotes.NewFailoverSource(p.quotes, quotes.NewSyntheticSource(0), p.cfg.Pipeline.FailoverThreshold, p.log)
		src = failover
	}
	for _, symbol := range watchlist {
		q, err := src.Quote(ctx, symbol)
		if err != nil {
			if errors.Is(err, quotes.ErrRateLimited) && failover == nil {
				return nil, "live", failed, err
			}
			if ctx.Err() != nil {
				return nil, "live", failed, ctx.Err()
			}
			failed++
			continue
		}
		fetched = append(fetched, q)
	}
	source = "live"
	if failover != nil && failover.Tripped() {
		source = "synthetic"
	}
	return fetched, source, failed, nil
}

// upsertRealQuote holds the one-document-per-ticker invariant: one existing
// match is updated, none creates, and more than one is rejected for that
// record instead of silently touching the first.
func (p *Pipelines) upsertRealQuote(ctx context.Context, record store.RealQuote, now time.Time) (created bool, err error) {
	st := p.cfg.Store
	docs, err := p.store.ListDocuments(ctx, st.DatabaseID, st.RealWorldCollectionID, store.Equal(store.FieldTicker, record.Ticker))
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", record.Ticker, err)
	}
	switch len(docs) {
	case 0:
		_, err = p.store.CreateDocument(ctx, st.DatabaseID, st.RealWorldCollectionID, "", record.Fields(now))
		if err != nil {
			return false, fmt.Errorf("create %s: %w", record.Ticker, err)
		}
		return true, nil
	case 1:
		_, err = p.store.UpdateDocument(ctx, st.DatabaseID, st.RealWorldCollectionID, docs[0].ID, record.Fields(now))
		if err != nil {
			return false, fmt.Errorf("update %s: %w", record.Ticker, err)
		}
		return false, nil
	default:
		return false, fmt.Errorf("duplicate documents for ticker %s: found %d", record.Ticker, len(docs))
	}
}
