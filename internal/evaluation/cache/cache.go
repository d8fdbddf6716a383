// Package cache stores retrieval results in Redis keyed by everything that
// determines them: the index fingerprint, the scoring model and its
// parameters, k and the query terms. Concurrent misses for the same key are collapsed with singleflight.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/internal/retrieval/scorer"
	"github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/redis"
)

const keyPrefix = "trec:result:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one retrieval. Term order matters because repeated and
// ordered terms change the score vector.
type Key struct {
	// Index is the fingerprint of the index the result was computed on.
	Index  string
	Model  scorer.Model
	Params scorer.Params
	K      int
	Terms  []string
}

// String returns the Redis key for k.
func (k Key) String() string {
	h := blake3.New()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeUint(uint64(len(k.Index)))
	h.WriteString(k.Index)
	writeUint(uint64(k.Model))
	for _, f := range []float64{k.Params.K1, k.Params.B, k.Params.Lambda, k.Params.Mu} {
		writeUint(math.Float64bits(f))
	}
	writeUint(uint64(k.K))
	writeUint(uint64(len(k.Terms)))
	for _, t := range k.Terms {
		writeUint(uint64(len(t)))
		h.Write([]byte(t))
	}
	sum := h.Sum(nil)
	return keyPrefix + hex.EncodeToString(sum[:16])
}

type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Get returns the cached result for key. Backend and decoding errors are
// logged and reported as a miss.
func (c *ResultCache) Get(ctx context.Context, key Key) (*retrieval.Result, bool) {
	k := key.String()
	data, err := c.backend.Get(ctx, k)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", k, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result retrieval.Result
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *ResultCache) Set(ctx context.Context, key Key, result *retrieval.Result) {
	k := key.String()
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.backend.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once per
// key across concurrent callers and stores its result. The boolean reports
// a cache hit.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*retrieval.Result, error),
) (*retrieval.Result, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*retrieval.Result), false, nil
}

// Invalidate drops every cached result.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
