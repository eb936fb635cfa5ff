// Package schema discovers and memoizes board column definitions.
package schema

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/KarmaFounder/friday-jarvis/domain"
)

// Fetcher loads the columns of a board from the remote system.
type Fetcher interface {
	BoardColumns(ctx context.Context, boardID string) ([]domain.Column, error)
}

// Schema is the column set of one board at the time it was fetched.
type Schema struct {
	BoardID   string          `json:"boardId"`
	Columns   []domain.Column `json:"columns"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Option customises a Cache.
type Option func(*Cache)

// WithTTL expires entries after ttl. Zero keeps entries for the lifetime of
// the cache.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl < 0 {
			ttl = 0
		}
		c.ttl = ttl
	}
}

// WithClock injects the time source used for FetchedAt and expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRedis adds a shared second tier so several processes reuse discovered
// schemas.
func WithRedis(client *redis.Client) Option {
	return func(c *Cache) { c.redis = client }
}

// WithFetchTimeout bounds a shared schema fetch. The fetch outlives the
// request that started it, so it is not tied to that request's deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Cache) { c.log = logger }
}

// Cache memoizes board schemas keyed by board id. Stored entries are never
// mutated, only replaced after expiry or Invalidate.
type Cache struct {
	fetcher Fetcher
	redis   *redis.Client
	ttl     time.Duration
	now     func() time.Time
	log     *log.Logger

	fetchTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]Schema
	group   singleflight.Group
}

// New creates a Cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	if fetcher == nil {
		panic("schema.New: fetcher is nil")
	}
	c := &Cache{
		fetcher:      fetcher,
		now:          time.Now,
		log:          log.StandardLogger(),
		entries:      make(map[string]Schema),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const defaultFetchTimeout = 2 * time.Minute

// Get returns the schema of boardID, fetching it on first use. Concurrent
// misses share one fetch; a caller whose ctx ends stops waiting without
// cancelling the fetch for the others.
func (c *Cache) Get(ctx context.Context, boardID string) (Schema, error) {
	if s, ok := c.lookup(boardID); ok {
		return s, nil
	}
	ch := c.group.DoChan(boardID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, boardID)
	})
	select {
	case <-ctx.Done():
		return Schema{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Schema{}, r.Err
		}
		return clone(r.Val.(Schema)), nil
	}
}

func (c *Cache) fetch(ctx context.Context, boardID string) (Schema, error) {
	if s, ok := c.lookup(boardID); ok {
		return s, nil
	}
	if s, ok := c.loadFromRedis(ctx, boardID); ok {
		c.store(s)
		return s, nil
	}
	cols, err := c.fetcher.BoardColumns(ctx, boardID)
	if err != nil {
		return Schema{}, err
	}
	s := Schema{BoardID: boardID, Columns: slices.Clone(cols), FetchedAt: c.now()}
	c.store(s)
	c.storeInRedis(ctx, s)
	c.log.WithFields(log.Fields{"board": boardID, "columns": len(cols)}).Debug("schema discovered")
	return s, nil
}

// Invalidate drops the cached schema of boardID from every tier.
func (c *Cache) Invalidate(ctx context.Context, boardID string) {
	c.mu.Lock()
	delete(c.entries, boardID)
	c.mu.Unlock()
	if c.redis != nil {
		_ = c.redis.Del(ctx, cacheKey(boardID)).Err()
	}
}

func (c *Cache) lookup(boardID string) (Schema, bool) {
	c.mu.RLock()
	s, ok := c.entries[boardID]
	c.mu.RUnlock()
	if !ok {
		return Schema{}, false
	}
	if c.expired(s) {
		return Schema{}, false
	}
	return clone(s), true
}

func (c *Cache) expired(s Schema) bool {
	return c.ttl > 0 && c.now().Sub(s.FetchedAt) >= c.ttl
}

func (c *Cache) store(s Schema) {
	c.mu.Lock()
	c.entries[s.BoardID] = s
	c.mu.Unlock()
}

func clone(s Schema) Schema {
	s.Columns = slices.Clone(s.Columns)
	return s
}

// ColumnIDByType returns the id of the first column of type t.
func ColumnIDByType(s Schema, t domain.ColumnType) (string, bool) {
	for _, col := range s.Columns {
		if col.Type == t {
			return col.ID, true
		}
	}
	return "", false
}

// StatusLabelID finds the status label whose text equals text, ignoring
// case. It reports false when the board has no status column or no label
// matches.
func StatusLabelID(s Schema, text string) (domain.StatusLabel, bool) {
	want := strings.TrimSpace(text)
	if want == "" {
		return domain.StatusLabel{}, false
	}
	for _, col := range s.Columns {
		if col.Type != domain.ColumnStatus {
			continue
		}
		for _, label := range col.Labels() {
			if strings.EqualFold(strings.TrimSpace(label.Text), want) {
				return label, true
			}
		}
	}
	return domain.StatusLabel{}, false
}
