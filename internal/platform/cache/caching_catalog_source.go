package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/catalog/usecase"
	"cube_wizard/internal/shared/cardname"
)

// CachingCatalogSource decorates a CatalogSource with a Redis tier shared
// between processes. Only successful responses are cached; not-found and
// transport errors always reach the inner source.
type CachingCatalogSource struct {
	inner     usecase.CatalogSource
	rdb       *redis.Client
	ttl       func() time.Duration
	namespace string
}

var _ usecase.CatalogSource = (*CachingCatalogSource)(nil)

// NewCachingCatalogSource は CatalogSource をRedisキャッシュでラップします。
// ttl が nil の場合は次の日次カタログ更新（UTC 09:00）までをTTLとします。
// namespace が空の場合は "catalog" を使用します。
func NewCachingCatalogSource(rdb *redis.Client, ttl func() time.Duration, inner usecase.CatalogSource, namespace string) *CachingCatalogSource {
	if ttl == nil {
		ttl = func() time.Duration { return TimeUntilNextRefresh(time.Now(), DefaultRefreshHour, time.UTC) }
	}
	if namespace == "" {
		namespace = "catalog"
	}
	return &CachingCatalogSource{inner: inner, rdb: rdb, ttl: ttl, namespace: namespace}
}

func (c *CachingCatalogSource) FetchNamed(ctx context.Context, name, setHint string) (entity.CatalogEntry, error) {
	key := c.cacheKey("named", cardname.Key(name, setHint))
	return cached(ctx, c, key, func() (entity.CatalogEntry, error) {
		return c.inner.FetchNamed(ctx, name, setHint)
	})
}

func (c *CachingCatalogSource) FetchFuzzy(ctx context.Context, name string) (entity.CatalogEntry, error) {
	key := c.cacheKey("fuzzy", cardname.Normalize(name))
	return cached(ctx, c, key, func() (entity.CatalogEntry, error) {
		return c.inner.FetchFuzzy(ctx, name)
	})
}

func (c *CachingCatalogSource) Autocomplete(ctx context.Context, query string) ([]string, error) {
	key := c.cacheKey("ac", cardname.Normalize(query))
	return cached(ctx, c, key, func() ([]string, error) {
		return c.inner.Autocomplete(ctx, query)
	})
}

func (c *CachingCatalogSource) FetchByOracleID(ctx context.Context, oracleID string) (entity.CatalogEntry, error) {
	key := c.cacheKey("oracle", strings.ToLower(strings.TrimSpace(oracleID)))
	return cached(ctx, c, key, func() (entity.CatalogEntry, error) {
		return c.inner.FetchByOracleID(ctx, oracleID)
	})
}

// Flush deletes every key of the namespace. It backs catalog purges.
func (c *CachingCatalogSource) Flush(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.deleteByPattern(ctx, c.namespace+":*")
}

// Forget deletes the shared responses cached for one card name: the named
// lookup for setHint, the fuzzy guess and the autocomplete list.
func (c *CachingCatalogSource) Forget(ctx context.Context, name, setHint string) error {
	if c.rdb == nil {
		return nil
	}
	norm := cardname.Normalize(name)
	if norm == "" {
		return nil
	}
	return c.rdb.Del(ctx,
		c.cacheKey("named", cardname.Key(name, setHint)),
		c.cacheKey("fuzzy", norm),
		c.cacheKey("ac", norm),
	).Err()
}

// cached checks Redis first, falls back to load and stores the result best effort.
func cached[T any](ctx context.Context, c *CachingCatalogSource, key string, load func() (T, error)) (T, error) {
	if c.rdb == nil {
		return load()
	}

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out T
		if err := json.Unmarshal(b, &out); err == nil {
			return out, nil
		}
		// Delete corrupted cache entry
		_ = c.rdb.Del(ctx, key).Err()
	}

	out, err := load()
	if err != nil {
		return out, err
	}

	if b, err := json.Marshal(out); err == nil {
		_ = c.rdb.Set(ctx, key, b, c.ttl()).Err()
	}
	return out, nil
}

func (c *CachingCatalogSource) cacheKey(kind, normalized string) string {
	return fmt.Sprintf("%s:%s:%s", c.namespace, kind, safe(normalized))
}

// deleteByPattern deletes all cache keys matching a given pattern using SCAN.
func (c *CachingCatalogSource) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, cur, err := c.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return nil
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return s
}
