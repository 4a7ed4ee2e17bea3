package factors

import (
	"context"
	"sync"

	"github.com/jwaldner/wheelhouse/internal/models"
)

// SnapshotFetcher loads a factor snapshot for one ticker. A nil snapshot with
// a nil error means the source has no data for the ticker.
type SnapshotFetcher interface {
	FetchFactorSnapshot(ctx context.Context, ticker string) (*models.FactorSnapshot, error)
}

// Cache holds snapshots per ticker for the lifetime of the value. Entries never
// expire on their own; callers decide freshness through Refresh or Invalidate.
type Cache struct {
	fetcher SnapshotFetcher

	mu      sync.Mutex // guards entries, not the entries' contents
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	loaded bool
	snap   *models.FactorSnapshot
}

// NewCache creates an empty cache backed by fetcher
func NewCache(fetcher SnapshotFetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[string]*entry),
	}
}

func (c *Cache) entry(ticker string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[ticker]
	if !ok {
		e = &entry{}
		c.entries[ticker] = e
	}
	return e
}

// Get returns the cached snapshot, fetching it on first use. Concurrent callers
// for the same ticker wait on that ticker's lock only.
func (c *Cache) Get(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	e := c.entry(ticker)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return e.snap, nil
	}
	return c.load(ctx, ticker, e)
}

// Refresh discards any cached value for ticker and fetches it again
func (c *Cache) Refresh(ctx context.Context, ticker string) (*models.FactorSnapshot, error) {
	e := c.entry(ticker)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loaded = false
	e.snap = nil
	return c.load(ctx, ticker, e)
}

// load must be called with e.mu held. Fetch errors are not cached.
func (c *Cache) load(ctx context.Context, ticker string, e *entry) (*models.FactorSnapshot, error) {
	if c.fetcher == nil {
		e.loaded = true
		return nil, nil
	}

	snap, err := c.fetcher.FetchFactorSnapshot(ctx, ticker)
	if err != nil {
		return nil, err
	}
	e.snap = snap
	e.loaded = true
	return snap, nil
}

// Invalidate drops ticker so the next Get fetches again
func (c *Cache) Invalidate(ticker string) {
	c.mu.Lock()
	delete(c.entries, ticker)
	c.mu.Unlock()
}

// Tickers lists tickers with a loaded snapshot
func (c *Cache) Tickers() []string {
	c.mu.Lock()
	entries := make(map[string]*entry, len(c.entries))
	for k, v := range c.entries {
		entries[k] = v
	}
	c.mu.Unlock()

	var out []string
	for k, e := range entries {
		e.mu.Lock()
		if e.loaded {
			out = append(out, k)
		}
		e.mu.Unlock()
	}
	return out
}
