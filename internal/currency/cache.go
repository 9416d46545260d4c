package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher retrieves the latest exchange-rate table
type Fetcher interface {
	Fetch(ctx context.Context) (Table, error)
}

// Observer is notified of refresh outcomes
type Observer interface {
	RateRefresh(ok bool, at time.Time)
}

// Cache holds the last successfully fetched table and refreshes it in the
// background. Snapshot never waits on the network.
type Cache struct {
	mu       sync.RWMutex
	table    Table
	fresh    bool
	lastErr  error
	fetcher  Fetcher
	interval time.Duration
	log      zerolog.Logger
	obs      Observer
}

// NewCache creates a cache serving fallback until the first refresh succeeds
func NewCache(f Fetcher, fallback Table, interval time.Duration, log zerolog.Logger) *Cache {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Cache{
		table:    fallback,
		fetcher:  f,
		interval: interval,
		log:      log.With().Str("component", "rates").Logger(),
	}
}

// WithObserver attaches refresh instrumentation
func (c *Cache) WithObserver(obs Observer) *Cache {
	c.obs = obs
	return c
}

// Snapshot returns the current table
func (c *Cache) Snapshot() Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table
}

// Fresh reports whether the snapshot came from a successful fetch
func (c *Cache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh
}

// LastError returns the error of the most recent refresh, if any
func (c *Cache) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Refresh fetches a new table. On failure the previous table is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	t, err := c.fetcher.Fetch(ctx)
	if err == nil && len(t.Rates) == 0 {
		err = fmt.Errorf("empty rate table")
	}

	now := time.Now()
	c.mu.Lock()
	c.lastErr = err
	if err == nil {
		if t.FetchedAt.IsZero() {
			t.FetchedAt = now
		}
		c.table = t
		c.fresh = true
	}
	c.mu.Unlock()

	if c.obs != nil {
		c.obs.RateRefresh(err == nil, now)
	}
	if err != nil {
		return fmt.Errorf("refreshing exchange rates: %w", err)
	}
	return nil
}

// Run refreshes immediately and then on every interval until ctx is done
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Refresh(ctx); err != nil {
			c.log.Warn().Err(err).Msg("keeping previous exchange rates")
		} else {
			c.log.Debug().Str("base", c.Snapshot().Base).Msg("exchange rates refreshed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
