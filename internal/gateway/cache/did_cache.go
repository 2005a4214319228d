// Package cache decorates a DID gateway with a Redis-backed resolution cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"upandup/internal/gateway"
	"upandup/internal/gateway/metrics"
	"upandup/internal/ledger/models"
)

const redisDIDKeyPrefix = "upandup:did:"

// DefaultTTL bounds how long a confirmed document is served from cache.
const DefaultTTL = 6 * time.Hour

// DIDCache wraps a DIDGateway. Only anchor-confirmed documents are cached:
// a pending anchor must keep reaching the provider until it settles.
// Redis failures degrade to direct resolution.
type DIDCache struct {
	next    gateway.DIDGateway
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a DIDCache.
type Option func(*DIDCache)

// WithTTL sets the cache entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *DIDCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMetrics records hit and miss metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *DIDCache) {
		c.metrics = m
	}
}

// WithLogger sets the logger for degraded cache operations.
func WithLogger(logger *slog.Logger) Option {
	return func(c *DIDCache) {
		c.logger = logger
	}
}

// New constructs the caching decorator.
func New(next gateway.DIDGateway, client *redis.Client, opts ...Option) *DIDCache {
	if next == nil {
		panic("cache: next gateway is required")
	}
	if client == nil {
		panic("cache: redis client is required")
	}
	c := &DIDCache{
		next:   next,
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateDID delegates to the wrapped gateway. Nothing is cached because the
// new document is rarely confirmed at creation time.
func (c *DIDCache) CreateDID(ctx context.Context, details models.WorkerDetails) (*gateway.DIDResult, error) {
	res, err := c.next.CreateDID(ctx, details)
	if err != nil {
		return nil, err
	}
	if res.Document != nil && res.AnchorStatus == models.AnchorConfirmed {
		c.store(ctx, res.Document)
	}
	return res, nil
}

// ResolveDID serves confirmed documents from Redis and falls back to the
// wrapped gateway on a miss.
func (c *DIDCache) ResolveDID(ctx context.Context, did string) (*gateway.DIDDocument, error) {
	doc, err := c.lookup(ctx, did)
	if err == nil {
		return doc, nil
	}

	doc, err = c.next.ResolveDID(ctx, did)
	if err != nil {
		return nil, err
	}
	if doc.AnchorStatus == models.AnchorConfirmed {
		c.store(ctx, doc)
	}
	return doc, nil
}

// Invalidate drops a cached document.
func (c *DIDCache) Invalidate(ctx context.Context, did string) error {
	if err := c.client.Del(ctx, didKey(did)).Err(); err != nil {
		return fmt.Errorf("invalidate did cache: %w", err)
	}
	return nil
}

var errMiss = errors.New("did cache miss")

func (c *DIDCache) lookup(ctx context.Context, did string) (*gateway.DIDDocument, error) {
	start := time.Now()
	data, err := c.client.Get(ctx, didKey(did)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordCacheMiss(time.Since(start))
			return nil, errMiss
		}
		c.metrics.IncCacheError()
		c.logger.WarnContext(ctx, "did cache read failed", "error", err)
		return nil, err
	}

	var doc gateway.DIDDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		c.metrics.IncCacheError()
		return nil, fmt.Errorf("decode did cache: %w", err)
	}
	c.metrics.RecordCacheHit(time.Since(start))
	return &doc, nil
}

func (c *DIDCache) store(ctx context.Context, doc *gateway.DIDDocument) {
	payload, err := json.Marshal(doc)
	if err != nil {
		c.metrics.IncCacheError()
		return
	}
	if err := c.client.Set(ctx, didKey(doc.ID), payload, c.ttl).Err(); err != nil {
		c.metrics.IncCacheError()
		c.logger.WarnContext(ctx, "did cache write failed", "error", err)
	}
}

func didKey(did string) string {
	return redisDIDKeyPrefix + did
}
