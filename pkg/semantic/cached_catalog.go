package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

const entitySetKeyPrefix = "chatbi:entity-set:"

// RedisCache is the subset of redis.Cmdable the cache needs.
type RedisCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedCatalog keeps resolved entity sets in Redis so replicas share one
// view of slow catalogs. Cache failures fall through to the inner catalog.
type CachedCatalog struct {
	inner  Catalog
	cache  RedisCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog wraps inner with a Redis cache. A nil cache returns inner
// unchanged.
func NewCachedCatalog(inner Catalog, cache RedisCache, ttl time.Duration, logger *zap.Logger) Catalog {
	if cache == nil {
		return inner
	}
	return &CachedCatalog{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("semantic-cache"),
	}
}

func entitySetKey(dataSource, entitySet string) string {
	return fmt.Sprintf("%s%s:%s", entitySetKeyPrefix, dataSource, entitySet)
}

// DataSource is never cached: engine configs may carry secrets.
func (c *CachedCatalog) DataSource(ctx context.Context, name string) (*models.DataSource, error) {
	return c.inner.DataSource(ctx, name)
}

// SelectEntitySet implements Catalog.
func (c *CachedCatalog) SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntitySet, error) {
	key := entitySetKey(dataSource, entitySet)

	raw, err := c.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var es models.EntitySet
		if jsonErr := json.Unmarshal(raw, &es); jsonErr == nil && es.EntityType != nil {
			return &es, nil
		}
		c.logger.Warn("Discarding corrupt cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Metadata cache read failed", zap.String("key", key), zap.Error(err))
	}

	es, err := c.inner.SelectEntitySet(ctx, dataSource, entitySet)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(es)
	if err != nil {
		return es, nil
	}
	if err := c.cache.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("Metadata cache write failed", zap.String("key", key), zap.Error(err))
	}
	return es, nil
}

var _ Catalog = (*CachedCatalog)(nil)
