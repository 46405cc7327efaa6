// Package cache stores fully ranked result lists in Redis, keyed by the
// sorted query terms and the index generation they were computed against.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/note-search/pkg/redis"
)

const keyPrefix = "search:"

type QueryCache struct {
	client  *pkgredis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client *pkgredis.Client, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the ranked list cached for terms at generation. Redis errors
// count as misses.
func (c *QueryCache) Get(ctx context.Context, terms []string, generation int64) ([]ranker.ScoredDoc, bool) {
	key := Key(terms, generation)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var docs []ranker.ScoredDoc
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "terms", terms, "generation", generation)
	return docs, true
}

func (c *QueryCache) Set(ctx context.Context, terms []string, generation int64, docs []ranker.ScoredDoc) {
	key := Key(terms, generation)
	data, err := json.Marshal(docs)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached list or computes and stores it. Concurrent
// misses for the same key share one computation.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	terms []string,
	generation int64,
	computeFn func() ([]ranker.ScoredDoc, error),
) ([]ranker.ScoredDoc, bool, error) {
	if docs, ok := c.Get(ctx, terms, generation); ok {
		return docs, true, nil
	}
	key := Key(terms, generation)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		docs, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, terms, generation, docs)
		return docs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]ranker.ScoredDoc), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Key is independent of term order and repetition.
func Key(terms []string, generation int64) string {
	sorted := ranker.UniqueTerms(terms)
	sort.Strings(sorted)
	raw := strings.Join(sorted, "\x00") + "\x00gen=" + strconv.FormatInt(generation, 10)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
