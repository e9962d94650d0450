package di

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	decksadapters "cube_wizard/internal/feature/decks/adapters"
	deckshandler "cube_wizard/internal/feature/decks/transport/handler"
	decksusecase "cube_wizard/internal/feature/decks/usecase"
	extractionusecase "cube_wizard/internal/feature/extraction/usecase"
	ingestadapters "cube_wizard/internal/feature/ingest/adapters"
	ingesthandler "cube_wizard/internal/feature/ingest/transport/handler"
	ingestusecase "cube_wizard/internal/feature/ingest/usecase"
	reconusecase "cube_wizard/internal/feature/reconciliation/usecase"
	infradb "cube_wizard/internal/platform/db"
	"cube_wizard/internal/platform/externalapi/cubecobra"
	"cube_wizard/internal/platform/externalapi/scryfall"
	healthhandler "cube_wizard/internal/platform/http/handler"
	infraredis "cube_wizard/internal/platform/redis"
)

// Config collects the settings of every component built by Build.
type Config struct {
	DB               infradb.Config
	Redis            infraredis.Config
	Scryfall         scryfall.Config
	CatalogCachePath string
	VisionBackend    string
	CubeMappingPath  string
	DefaultCubeID    string
	Reconcile        reconusecase.Config
	Ingest           ingestusecase.Config

	// Backend overrides VISION_BACKEND when set.
	Backend extractionusecase.ModelBackend
}

// LoadConfig は全コンポーネントの設定を環境変数から読み込みます。
func LoadConfig() Config {
	return Config{
		DB:               infradb.LoadConfigFromEnv(),
		Redis:            infraredis.LoadConfig(),
		Scryfall:         scryfall.LoadConfig(),
		CatalogCachePath: os.Getenv("CATALOG_CACHE_PATH"),
		VisionBackend:    os.Getenv("VISION_BACKEND"),
		CubeMappingPath:  os.Getenv("CUBE_MAPPING_PATH"),
		DefaultCubeID:    os.Getenv("DEFAULT_CUBE_ID"),
		Reconcile:        reconusecase.LoadConfig(),
		Ingest:           ingestusecase.LoadConfig(),
	}
}

// Container holds the wired application graph shared by the server and the CLI.
type Container struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Catalog    *Catalog
	Pools      *cubecobra.Client
	Cubes      ingestadapters.CubeMapping
	Reconciler *reconusecase.Reconciler
	Pipeline   *ingestusecase.Pipeline
	Importer   *ingestusecase.BatchImporter
	Decks      decksusecase.DeckUsecase

	closeBackend func() error
}

// Build wires every component. Redis and the catalog snapshot are optional:
// failures there are logged and the container runs without them.
func Build(ctx context.Context, cfg Config) (*Container, error) {
	db, err := infradb.OpenDB(cfg.DB, decksadapters.Models()...)
	if err != nil {
		return nil, err
	}
	c := &Container{DB: db, closeBackend: func() error { return nil }}

	rdb, err := infraredis.NewRedisClient(ctx, cfg.Redis)
	switch {
	case err == nil:
		c.Redis = rdb
	case errors.Is(err, infraredis.ErrRedisDisabled):
		slog.Info("Redis not configured. Running without shared cache.")
	default:
		slog.Warn("Redis unavailable. Running without shared cache.", "error", err)
	}

	catalog, err := NewCatalog(c.Redis, cfg.Scryfall, cfg.CatalogCachePath)
	if err != nil {
		slog.Warn("catalog snapshot ignored", "path", cfg.CatalogCachePath, "error", err)
	}
	c.Catalog = catalog
	c.Pools = NewCubePools()

	cubes, err := ingestadapters.LoadCubeMapping(cfg.CubeMappingPath)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Cubes = cubes

	backend := cfg.Backend
	if backend == nil {
		b, closeFn, err := NewModelBackend(ctx, cfg.VisionBackend)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		backend, c.closeBackend = b, closeFn
	}
	slog.Info("vision backend selected", "backend", backend.Name())

	reconciler, err := reconusecase.NewReconciler(catalog.Service, cfg.Reconcile)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Reconciler = reconciler

	repo := decksadapters.NewDeckRepository(db)
	c.Pipeline = ingestusecase.NewPipeline(NewExtractor(backend), reconciler, repo, c.Pools)
	c.Importer = ingestusecase.NewBatchImporter(
		c.Pipeline,
		ingestadapters.NewFSStore(),
		ingestadapters.NewMetadataReader(cubes, cfg.DefaultCubeID),
		cfg.Ingest,
	)
	c.Decks = decksusecase.NewDeckUsecase(repo, reconciler)
	return c, nil
}

// Handlers are the HTTP handlers served by the API.
type Handlers struct {
	Health *healthhandler.HealthHandler
	Decks  *deckshandler.DecksHandler
	Ingest *ingesthandler.IngestHandler
}

// Handlers creates the HTTP handlers over the container's components.
func (c *Container) Handlers() Handlers {
	deps := map[string]healthhandler.Pinger{
		"database": healthhandler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := c.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if c.Redis != nil {
		deps["redis"] = healthhandler.PingFunc(func(ctx context.Context) error {
			return infraredis.Ping(ctx, c.Redis)
		})
	}
	return Handlers{
		Health: healthhandler.NewHealthHandler(deps),
		Decks:  deckshandler.NewDecksHandler(c.Decks),
		Ingest: ingesthandler.NewIngestHandler(c.Pipeline, c.Cubes),
	}
}

// Close saves the catalog snapshot and releases every client. It is safe to
// call on a partially built container.
func (c *Container) Close() error {
	var errs []error
	if c.Catalog != nil {
		if err := c.Catalog.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.closeBackend != nil {
		if err := c.closeBackend(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
