package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedAdapter decorates a base adapter with a read-through document
// cache: an in-process LRU in front of Redis. Only Load is cached;
// List/Count/Search results depend on filters and pagination and go
// straight to the backend. Writes invalidate both cache layers before
// delegating, so a failed backend write never leaves a stale hit behind.
type CachedAdapter struct {
	base  Adapter
	redis *redis.Client
	l1    *lru.Cache[string, []byte]
	ttl   time.Duration
}

// NewCachedAdapter wraps base with the document cache. Redis
// connectivity is verified eagerly so cache misconfiguration fails at
// startup.
func NewCachedAdapter(base Adapter, cfg Config) (*CachedAdapter, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to connect to redis: %v", ErrUnavailable, err)
	}

	size := cfg.L1CacheSize
	if size <= 0 {
		size = 1024
	}
	l1, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &CachedAdapter{base: base, redis: client, l1: l1, ttl: ttl}, nil
}

// Name implements Adapter.Name.
func (a *CachedAdapter) Name() string { return a.base.Name() }

func cacheKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

func (a *CachedAdapter) cacheGet(ctx context.Context, key string) (Document, bool) {
	if payload, ok := a.l1.Get(key); ok {
		var doc Document
		if json.Unmarshal(payload, &doc) == nil {
			return doc, true
		}
		a.l1.Remove(key)
	}

	payload, err := a.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false // miss or redis outage; fall through to backend
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		a.redis.Del(ctx, key)
		return nil, false
	}
	a.l1.Add(key, payload)
	return doc, true
}

func (a *CachedAdapter) cacheSet(ctx context.Context, key string, doc Document) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return
	}
	a.l1.Add(key, payload)
	a.redis.Set(ctx, key, payload, a.ttl)
}

func (a *CachedAdapter) invalidate(ctx context.Context, collection, id string) {
	key := cacheKey(collection, id)
	a.l1.Remove(key)
	a.redis.Del(ctx, key)
}

// Save implements Adapter.Save with cache invalidation.
func (a *CachedAdapter) Save(ctx context.Context, collection string, data Document, id string) (string, error) {
	if id != "" {
		a.invalidate(ctx, collection, id)
	}
	savedID, err := a.base.Save(ctx, collection, data, id)
	if err != nil {
		return "", err
	}
	a.invalidate(ctx, collection, savedID)
	return savedID, nil
}

// Load implements Adapter.Load with read-through caching.
func (a *CachedAdapter) Load(ctx context.Context, collection, id string) (Document, error) {
	key := cacheKey(collection, id)
	if doc, ok := a.cacheGet(ctx, key); ok {
		return doc, nil
	}
	doc, err := a.base.Load(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	a.cacheSet(ctx, key, doc)
	return doc, nil
}

// List implements Adapter.List; never cached.
func (a *CachedAdapter) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	return a.base.List(ctx, collection, opts)
}

// Update implements Adapter.Update with cache invalidation.
func (a *CachedAdapter) Update(ctx context.Context, collection, id string, partial Document) (bool, error) {
	a.invalidate(ctx, collection, id)
	return a.base.Update(ctx, collection, id, partial)
}

// Delete implements Adapter.Delete with cache invalidation.
func (a *CachedAdapter) Delete(ctx context.Context, collection, id string) (bool, error) {
	a.invalidate(ctx, collection, id)
	return a.base.Delete(ctx, collection, id)
}

// Count implements Adapter.Count; never cached.
func (a *CachedAdapter) Count(ctx context.Context, collection string, filters map[string]any) (int, error) {
	return a.base.Count(ctx, collection, filters)
}

// Exists implements Adapter.Exists. A cache hit answers without a
// backend round trip.
func (a *CachedAdapter) Exists(ctx context.Context, collection, id string) (bool, error) {
	if _, ok := a.cacheGet(ctx, cacheKey(collection, id)); ok {
		return true, nil
	}
	return a.base.Exists(ctx, collection, id)
}

// Clear implements Adapter.Clear. Individual keys cannot be enumerated
// cheaply, so the whole L1 is dropped and Redis entries age out by TTL.
func (a *CachedAdapter) Clear(ctx context.Context, collection string) (bool, error) {
	a.l1.Purge()
	iter := a.redis.Scan(ctx, 0, cacheKey(collection, "*"), 100).Iterator()
	for iter.Next(ctx) {
		a.redis.Del(ctx, iter.Val())
	}
	return a.base.Clear(ctx, collection)
}

// Search implements Adapter.Search; never cached.
func (a *CachedAdapter) Search(ctx context.Context, collection, query string, filters map[string]any, limit int) ([]Document, error) {
	return a.base.Search(ctx, collection, query, filters, limit)
}

// HealthCheck implements Adapter.HealthCheck.
func (a *CachedAdapter) HealthCheck(ctx context.Context) error {
	return a.base.HealthCheck(ctx)
}

// Close implements Adapter.Close.
func (a *CachedAdapter) Close() error {
	rerr := a.redis.Close()
	if err := a.base.Close(); err != nil {
		return err
	}
	return rerr
}

// Unwrap exposes the decorated adapter.
func (a *CachedAdapter) Unwrap() Adapter { return a.base }
