package quotes

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticSource fabricates plausible-looking quotes when the real provider
// is unavailable. Prices are anchored per symbol so repeated runs stay in a
// believable range instead of jumping around.
type SyntheticSource struct {
	rnd *rand.Rand
}

func NewSyntheticSource(seed int64) *SyntheticSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SyntheticSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *SyntheticSource) Quote(_ context.Context, symbol string) (Quote, error) {
	anchor := 40.0 + float64(crc32.ChecksumIEEE([]byte(symbol))%3000)/10.0
	price := anchor * (1 + (s.rnd.Float64()-0.5)*0.04)
	pct := (s.rnd.Float64() - 0.5) * 6 // -3%..+3%
	change := price * pct / 100

	priceStr := decimal.NewFromFloat(price).Round(2).String()
	pctStr := decimal.NewFromFloat(pct).Round(4).String() + "%"
	changeStr := decimal.NewFromFloat(change).Round(4).String()
	volume := fmt.Sprintf("%d", 500_000+s.rnd.Intn(20_000_000))

	return Quote{
		Ticker:           symbol,
		Price:            priceStr,
		ChangeAmount:     changeStr,
		ChangePercentage: pctStr,
		Volume:           volume,
		LatestTradingDay: time.Now().UTC().Format("2006-01-02"),
		Raw:              fmt.Sprintf(`{"synthetic":true,"symbol":%q,"price":%q}`, symbol, priceStr),
	}, nil
}

// FailoverSource serves quotes from the real provider until it has failed
// maxFailures times in a row, then switches to the synthetic source for the
// rest of the run. A success before the threshold resets the count. Not safe
// for concurrent use; pipelines fetch sequentially.
type FailoverSource struct {
	real        Source
	synthetic   Source
	maxFailures int
	failures    int
	tripped     bool
	log         *slog.Logger
}

func NewFailoverSource(real, synthetic Source, maxFailures int, logger *slog.Logger) *FailoverSource {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverSource{
		real:        real,
		synthetic:   synthetic,
		maxFailures: maxFailures,
		log:         logger,
	}
}

func (f *FailoverSource) Quote(ctx context.Context, symbol string) (Quote, error) {
	if f.tripped {
		return f.synthetic.Quote(ctx, symbol)
	}
	q, err := f.real.Quote(ctx, symbol)
	if err == nil {
		f.failures = 0
		return q, nil
	}
	f.failures++
	f.log.Warn("quote fetch failed", "symbol", symbol, "failures", f.failures, "err", err)
	if f.failures < f.maxFailures {
		return Quote{}, err
	}
	f.tripped = true
	f.log.Warn("quote provider tripped, switching to synthetic data", "after_failures", f.failures)
	return f.synthetic.Quote(ctx, symbol)
}

// Tripped reports whether the source has switched to synthetic data.
func (f *FailoverSource) Tripped() bool {
	return f.tripped
}
