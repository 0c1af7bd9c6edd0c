package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/brojonat/lendscan/service/scan"
)

type scanRunner interface {
	Run(ctx context.Context, params scan.Params) (*scan.Result, error)
}

type cachedScan struct {
	result    *scan.Result
	fetchedAt time.Time
}

// ledgerCache keeps the most recent scan per market. Concurrent misses for the
// same market share one scan.
type ledgerCache struct {
	scanner scanRunner
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cachedScan
	group   singleflight.Group
}

// newLedgerCache bounds each shared scan by timeout; zero means no bound.
func newLedgerCache(scanner scanRunner, ttl, timeout time.Duration, now func() time.Time) *ledgerCache {
	return &ledgerCache{
		scanner: scanner,
		ttl:     ttl,
		timeout: timeout,
		now:     now,
		entries: make(map[string]cachedScan),
	}
}

// Get returns a cached result younger than the TTL, or runs a new scan.
// The bool reports whether the result came from the cache.
func (c *ledgerCache) Get(ctx context.Context, params scan.Params, refresh bool) (*scan.Result, bool, error) {
	key := params.Market.String()

	if !refresh {
		c.mu.Lock()
		entry, ok := c.entries[key]
		c.mu.Unlock()
		if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
			return entry.result, true, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The scan is shared by every caller waiting on key, so it must not
		// end when the caller that started it goes away.
		scanCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			scanCtx, cancel = context.WithTimeout(scanCtx, c.timeout)
			defer cancel()
		}
		result, err := c.scanner.Run(scanCtx, params)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cachedScan{result: result, fetchedAt: c.now()}
		c.mu.Unlock()
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*scan.Result), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
