package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogentity "cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/extraction/domain/entity"
	ingestusecase "cube_wizard/internal/feature/ingest/usecase"
	reconusecase "cube_wizard/internal/feature/reconciliation/usecase"
	"cube_wizard/internal/platform/cache"
	infradb "cube_wizard/internal/platform/db"
	"cube_wizard/internal/platform/externalapi/scryfall"
	"cube_wizard/internal/shared/cardname"
)

type stubBackend struct{}

func (stubBackend) Name() string { return "stub" }

func (stubBackend) Extract(ctx context.Context, req entity.ModelRequest) (entity.ModelResponse, error) {
	return entity.ModelResponse{}, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		DB:               infradb.Config{Driver: infradb.DriverSQLite, Path: filepath.Join(dir, "decks.db"), Migrate: true},
		Scryfall:         scryfall.Config{BaseURL: "http://127.0.0.1:0", UserAgent: "test", Timeout: 1},
		CatalogCachePath: filepath.Join(dir, "catalog.json"),
		Reconcile:        reconusecase.Config{FuzzyThreshold: reconusecase.DefaultFuzzyThreshold, TieBreak: reconusecase.TieBreakPopularity},
		Ingest:           ingestusecase.Config{Workers: 1, SubmissionRoot: dir, ImportedDir: filepath.Join(dir, "imported")},
		Backend:          stubBackend{},
	}
}

// TestBuild はRedisなしでもコンテナが組み立てられ、Closeでスナップショットが保存されることを検証します。
func TestBuild(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	c, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Pipeline)
	assert.NotNil(t, c.Importer)
	assert.NotNil(t, c.Decks)

	h := c.Handlers()
	assert.NotNil(t, h.Health)
	assert.NotNil(t, h.Decks)
	assert.NotNil(t, h.Ingest)

	require.NoError(t, c.Close())
	_, err = os.Stat(cfg.CatalogCachePath)
	assert.NoError(t, err, "catalog snapshot should be written on close")
}

// TestBuild_InvalidTieBreak は不正なタイブレークポリシーでエラーになることを検証します。
func TestBuild_InvalidTieBreak(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Reconcile.TieBreak = "coin-flip"

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCatalog_Purge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	catalog, err := NewCatalog(nil, scryfall.Config{Timeout: 1}, path)
	require.NoError(t, err)
	require.NoError(t, catalog.Save())

	require.NoError(t, catalog.Purge(context.Background()))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	// purging twice is harmless
	assert.NoError(t, catalog.Purge(context.Background()))
}

// TestCatalog_Invalidate は1枚だけがキャッシュとスナップショットから外れることを検証します。
func TestCatalog_Invalidate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	catalog, err := NewCatalog(nil, scryfall.Config{Timeout: 1}, path)
	require.NoError(t, err)
	catalog.Cache.Put(cardname.Key("Lightning Bolt", ""), catalogentity.CatalogEntry{OracleID: "o-bolt", CanonicalName: "Lightning Bolt"})
	catalog.Cache.Put(cardname.Key("Counterspell", ""), catalogentity.CatalogEntry{OracleID: "o-cs", CanonicalName: "Counterspell"})

	require.NoError(t, catalog.Invalidate(context.Background(), "lightning bolt", ""))
	require.NoError(t, catalog.Save())

	reloaded := cache.NewCatalogCache()
	require.NoError(t, reloaded.Load(path))
	_, ok := reloaded.Get(cardname.Key("Lightning Bolt", ""))
	assert.False(t, ok)
	_, ok = reloaded.Get(cardname.Key("Counterspell", ""))
	assert.True(t, ok)
}

func TestNewModelBackend_Unknown(t *testing.T) {
	t.Parallel()

	_, _, err := NewModelBackend(context.Background(), "tesseract")
	assert.Error(t, err)
}
