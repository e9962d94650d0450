// Package di provides dependency injection factories for creating application components.
package di

import (
	"context"
	"errors"
	"os"

	"github.com/redis/go-redis/v9"

	catalogusecase "cube_wizard/internal/feature/catalog/usecase"
	"cube_wizard/internal/platform/cache"
	"cube_wizard/internal/platform/externalapi/cubecobra"
	"cube_wizard/internal/platform/externalapi/scryfall"
	infrahttp "cube_wizard/internal/platform/http"
	"cube_wizard/internal/shared/ratelimiter"
)

// Catalog bundles the catalog service with the caches behind it so that
// callers can persist or purge them.
type Catalog struct {
	Service   *catalogusecase.CatalogService
	Cache     *cache.CatalogCache
	Source    *cache.CachingCatalogSource
	CachePath string
}

// NewCatalog creates the Scryfall-backed catalog. If Redis is available, the
// source is shared through it. Otherwise, only the in-process cache is used.
// The snapshot at CATALOG_CACHE_PATH is loaded best effort.
func NewCatalog(rdb *redis.Client, cfg scryfall.Config, cachePath string) (*Catalog, error) {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	source := cache.NewCachingCatalogSource(rdb, nil, scryfall.NewClient(cfg, httpClient), "catalog")

	entries := cache.NewCatalogCache()
	var loadErr error
	if err := entries.Load(cachePath); err != nil {
		loadErr = err
	}

	svc := catalogusecase.NewCatalogService(source, entries, ratelimiter.NewRateLimiter(cfg.MinInterval), catalogusecase.DefaultRetryPolicy())
	return &Catalog{Service: svc, Cache: entries, Source: source, CachePath: cachePath}, loadErr
}

// Save writes the in-process cache snapshot.
func (c *Catalog) Save() error {
	return c.Cache.Save(c.CachePath)
}

// Purge drops every cached entry in memory, in Redis and on disk.
func (c *Catalog) Purge(ctx context.Context) error {
	c.Service.Purge()
	var errs []error
	if err := c.Source.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.CachePath != "" {
		if err := os.Remove(c.CachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate drops one card from the in-process cache and the shared Redis
// tier so that the next lookup refetches it. The snapshot drops it on the
// next Save.
func (c *Catalog) Invalidate(ctx context.Context, name, setHint string) error {
	c.Service.Invalidate(name, setHint)
	return c.Source.Forget(ctx, name, setHint)
}

// NewCubePools creates the CubeCobra client used for cube hints.
func NewCubePools() *cubecobra.Client {
	cfg := cubecobra.LoadConfig()
	return cubecobra.NewClient(cfg, infrahttp.NewHTTPClient(cfg.Timeout))
}
