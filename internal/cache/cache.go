// Package cache provides a Redis-backed result cache for search
// responses, with singleflight collapsing of concurrent identical
// queries and pattern-based invalidation on index writes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/deskwise/kbsearch/internal/kb"
	"github.com/deskwise/kbsearch/pkg/config"
	pkgredis "github.com/deskwise/kbsearch/pkg/redis"
)

const keyPrefix = "kbsearch:"

// Response is the cached unit: one page of search results.
type Response = kb.PaginatedResponse[kb.SearchResult]

// QueryCache caches search responses keyed on the normalized filter set
// and page coordinates.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a QueryCache on the given Redis client.
func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for the filters and page, if present.
func (c *QueryCache) Get(ctx context.Context, filters kb.SearchFilters, page, pageSize int) (*Response, bool) {
	key := c.buildKey(filters, page, pageSize)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return &resp, true
}

// Set stores a response with the configured TTL.
func (c *QueryCache) Set(ctx context.Context, filters kb.SearchFilters, page, pageSize int, resp *Response) {
	key := c.buildKey(filters, page, pageSize)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached response or computes and stores it,
// collapsing concurrent identical queries into a single computation.
// The boolean reports whether the response came from cache.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	filters kb.SearchFilters,
	page, pageSize int,
	computeFn func() (*Response, error),
) (*Response, bool, error) {
	if resp, ok := c.Get(ctx, filters, page, pageSize); ok {
		return resp, true, nil
	}
	key := c.buildKey(filters, page, pageSize)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if resp, ok := c.Get(ctx, filters, page, pageSize); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, filters, page, pageSize, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Response), false, nil
}

// Invalidate drops every cached response. Called after index writes;
// cached pages derived from the previous snapshot are all stale.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + "*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Debug("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns hit and miss counters since startup.
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the normalized filter set plus page coordinates.
func (c *QueryCache) buildKey(filters kb.SearchFilters, page, pageSize int) string {
	tags := append([]string(nil), filters.TagIDs...)
	sort.Strings(tags)
	raw := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(filters.Query)),
		filters.Type,
		filters.CategoryID,
		strings.Join(tags, ","),
		filters.Status,
		fmt.Sprintf("page=%d,size=%d", page, pageSize),
	}, "|")
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
