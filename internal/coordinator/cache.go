package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/federated-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/federated-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/federated-search/pkg/redis"
)

const cacheKeyPrefix = "query:"

// KV is the subset of the Redis client the result cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ResultCache keeps complete query results in Redis. Concurrent identical
// queries share one evaluation.
type ResultCache struct {
	kv          KV
	ttl         time.Duration
	evalTimeout time.Duration
	group       singleflight.Group
	hits        atomic.Int64
	misses      atomic.Int64
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// CacheOption configures a ResultCache.
type CacheOption func(*ResultCache)

// WithEvalTimeout bounds a shared evaluation. Without it the evaluation
// inherits the deadline of the caller that started it.
func WithEvalTimeout(d time.Duration) CacheOption {
	return func(c *ResultCache) { c.evalTimeout = d }
}

// NewResultCache creates a cache over kv. m may be nil.
func NewResultCache(kv KV, ttl time.Duration, m *metrics.Metrics, opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrEvaluate returns the cached result of q or evaluates it. Only
// results without any error are stored.
//
// Callers of the same query wait on one evaluation. It runs detached from
// the cancellation of whichever caller started it, so one client going away
// does not fail the others; each caller still returns when its own ctx ends.
func (c *ResultCache) GetOrEvaluate(ctx context.Context, q Query, eval func(context.Context) (*Result, error)) (*Result, bool, error) {
	key := CacheKey(q)
	if res, ok := c.get(ctx, key); ok {
		return res, true, nil
	}

	type evaluation struct {
		res *Result
		err error
	}
	ch := c.group.DoChan(key, func() (any, error) {
		evalCtx, cancel := c.evalContext(ctx)
		defer cancel()
		if res, ok := c.get(evalCtx, key); ok {
			return evaluation{res: res}, nil
		}
		res, err := eval(evalCtx)
		if err == nil && len(res.Errors) == 0 {
			c.set(evalCtx, key, res)
		}
		return evaluation{res: res, err: err}, nil
	})
	select {
	case r := <-ch:
		e := r.Val.(evaluation)
		return e.res, false, e.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *ResultCache) evalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.evalTimeout > 0 {
		return context.WithTimeout(detached, c.evalTimeout)
	}
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

func (c *ResultCache) get(ctx context.Context, key string) (*Result, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var res Result
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &res, true
}

func (c *ResultCache) set(ctx context.Context, key string, res *Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Invalidate drops every cached result and returns how many were removed.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.kv.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// HandleInvalidation is the kafka.MessageHandler of the cache invalidation
// topic. Any event flushes the whole cache.
func (c *ResultCache) HandleInvalidation(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[ingestion.InvalidationEvent](value)
	if err != nil {
		c.logger.Warn("undecodable invalidation event", "key", string(key), "error", err)
	}
	c.logger.Debug("invalidation event", "reason", event.Reason)
	_, err = c.Invalidate(ctx)
	return err
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// CacheKey identifies q by its normalised text and every parameter that
// changes the answer.
func CacheKey(q Query) string {
	docs := slices.Clone(q.RestrictDocs)
	slices.Sort(docs)
	docs = slices.Compact(docs)
	raw := fmt.Sprintf("%s|s=%s|i=%d|n=%d|d=%v|m=%t",
		strings.Join(strings.Fields(strings.ToLower(q.Text)), " "),
		q.Scheme, q.FirstRank, q.MaxRanks, docs, q.Debug)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
