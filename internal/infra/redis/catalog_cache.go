package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizbee-service/internal/catalog"
)

const catalogCacheKey = "quiz:catalog:content"

// CatalogCache fronts a slower catalog.Loader (e.g. Postgres) with a Redis
// copy of the parsed content, so instances restarting together share one load.
type CatalogCache struct {
	client *redis.Client
	loader catalog.Loader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader catalog.Loader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) Load(ctx context.Context) (catalog.Content, error) {
	if content, ok := c.cached(ctx); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(catalogCacheKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if content, ok := c.cached(ctx); ok {
			return content, nil
		}
		content, err := c.loader.Load(ctx)
		if err != nil {
			return catalog.Content{}, err
		}
		if body, err := json.Marshal(content); err == nil {
			_ = c.client.Set(ctx, catalogCacheKey, body, c.ttlWithJitter()).Err()
		}
		return content, nil
	})
	if err != nil {
		return catalog.Content{}, err
	}
	return result.(catalog.Content), nil
}

// Invalidate drops the cached copy so the next Load reads the backing store.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, catalogCacheKey).Err()
}

func (c *CatalogCache) cached(ctx context.Context) (catalog.Content, bool) {
	body, err := c.client.Get(ctx, catalogCacheKey).Bytes()
	if err != nil {
		return catalog.Content{}, false
	}
	var content catalog.Content
	if err := json.Unmarshal(body, &content); err != nil {
		return catalog.Content{}, false
	}
	return content, true
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
