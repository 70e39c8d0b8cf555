// Package cache is the Redis-backed search-result cache with singleflight
// suppression of duplicate in-flight queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ProgrammerXX1/plagio/internal/search"
	"github.com/ProgrammerXX1/plagio/pkg/config"
	pkgredis "github.com/ProgrammerXX1/plagio/pkg/redis"
)

const keyPrefix = "plagio:search:"

// QueryCache caches multi-segment search results per org. A nil
// *QueryCache is valid and computes every query.
type QueryCache struct {
	client *pkgredis.Client
	cfg    config.RedisConfig
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, org, query string, opt search.Options) (*search.Result, bool) {
	key := c.buildKey(org, query, opt)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if pkgredis.IsNilError(err) {
			c.misses.Add(1)
			return nil, false
		}
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	var result search.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "org_id", org, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, org, query string, opt search.Options, result *search.Result) {
	key := c.buildKey(org, query, opt)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result or computes it once per key even
// under concurrent identical requests. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	org, query string,
	opt search.Options,
	computeFn func() (*search.Result, error),
) (*search.Result, bool, error) {
	if c == nil {
		result, err := computeFn()
		return result, false, err
	}
	if result, ok := c.Get(ctx, org, query, opt); ok {
		return result, true, nil
	}
	key := c.buildKey(org, query, opt)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, org, query, opt); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, org, query, opt, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*search.Result), false, nil
}

// InvalidateOrg drops every cached query of one org; called after a new
// segment is sealed or a document is deleted.
func (c *QueryCache) InvalidateOrg(ctx context.Context, org string) error {
	if c == nil {
		return nil
	}
	pattern := keyPrefix + org + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating cache for %s: %w", org, err)
	}
	c.logger.Info("cache invalidated", "org_id", org, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) buildKey(org, query string, opt search.Options) string {
	raw := fmt.Sprintf("%s|topk=%d|topn=%d|minhits=%d|stop=%d|smin=%d|gap=%d|spans=%d|alpha=%.3f",
		query, opt.TopK, opt.CandidatesTopN, opt.MinHits, opt.MaxPostingsPerHash,
		opt.SpanMinLen, opt.SpanGap, opt.MaxSpansPerDoc, opt.Alpha)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, org, hash[:16])
}
