package pipeline

import (
	"context"
	"sync"
	"time"
)

// runBatches runs fn over n items in fixed-size batches. Records within a
// batch are written concurrently; a short pause between batches keeps write
// pressure on the store down. One record's failure never aborts the batch;
// the failure count is returned for the run summary.
func (p *Pipelines) runBatches(ctx context.Context, n int, fn func(ctx context.Context, i int) error) int {
	size := p.cfg.Pipeline.BatchSize
	if size <= 0 {
		size = 10
	}
	failed := 0
	var mu sync.Mutex
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(ctx, i); err != nil {
					p.log.Error("record write failed", "index", i, "err", err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if end < n && p.cfg.Pipeline.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return failed
			case <-time.After(p.cfg.Pipeline.BatchDelay):
			}
		}
	}
	return failed
}
