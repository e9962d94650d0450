// Package cache provides the catalog caches: an in-process entry cache with a
// JSON snapshot, and a Redis decorator around the catalog source.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/catalog/usecase"
	"cube_wizard/internal/shared/fsutil"
)

const snapshotVersion = 1

// CatalogCache はカタログエントリのプロセス内キャッシュです。
// 読み取りは並行、書き込みはまれなため RWMutex で保護します。
// Not-found markers and suggestions live only for the process lifetime and
// are never written to the snapshot.
type CatalogCache struct {
	mu          sync.RWMutex
	entries     map[string]entity.CatalogEntry
	byOracle    map[string]entity.CatalogEntry
	missing     map[string]struct{}
	suggestions map[string][]string
}

// CatalogCacheがEntryCacheを実装していることをコンパイル時に検証します。
var _ usecase.EntryCache = (*CatalogCache)(nil)

// snapshot is the on-disk layout of the cache.
type snapshot struct {
	Version int                            `json:"version"`
	SavedAt time.Time                      `json:"saved_at"`
	Entries map[string]entity.CatalogEntry `json:"entries"`
}

// NewCatalogCache は空のCatalogCacheを生成します。
func NewCatalogCache() *CatalogCache {
	return &CatalogCache{
		entries:     map[string]entity.CatalogEntry{},
		byOracle:    map[string]entity.CatalogEntry{},
		missing:     map[string]struct{}{},
		suggestions: map[string][]string{},
	}
}

func (c *CatalogCache) Get(key string) (entity.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *CatalogCache) Put(key string, e entity.CatalogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	if e.OracleID != "" {
		c.byOracle[e.OracleID] = e
	}
	delete(c.missing, key)
}

// ByOracleID returns any cached entry with the given oracle id.
func (c *CatalogCache) ByOracleID(oracleID string) (entity.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byOracle[oracleID]
	return e, ok
}

func (c *CatalogCache) IsMissing(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.missing[key]
	return ok
}

func (c *CatalogCache) PutMissing(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.missing[key] = struct{}{}
}

func (c *CatalogCache) GetSuggestions(key string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.suggestions[key]
	if !ok {
		return nil, false
	}
	return append([]string(nil), s...), true
}

func (c *CatalogCache) PutSuggestions(key string, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions[key] = append([]string(nil), names...)
}

// Invalidate drops every kind of cached value stored under key.
func (c *CatalogCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		delete(c.byOracle, e.OracleID)
	}
	delete(c.entries, key)
	delete(c.missing, key)
	delete(c.suggestions, key)
}

func (c *CatalogCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entity.CatalogEntry{}
	c.byOracle = map[string]entity.CatalogEntry{}
	c.missing = map[string]struct{}{}
	c.suggestions = map[string][]string{}
}

// Len returns the number of cached entries.
func (c *CatalogCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Save writes the positive entries to path atomically. An empty path is a no-op.
func (c *CatalogCache) Save(path string) error {
	if path == "" {
		return nil
	}

	c.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Entries: make(map[string]entity.CatalogEntry, len(c.entries)),
	}
	for k, v := range c.entries {
		snap.Entries[k] = v
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write catalog snapshot: %w", err)
	}
	slog.Debug("catalog snapshot saved", "path", path, "entries", len(snap.Entries))
	return nil
}

// Load merges a snapshot written by Save into the cache. A missing file is
// not an error; a corrupt or foreign-version file is reported and ignored.
func (c *CatalogCache) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read catalog snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode catalog snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("catalog snapshot version %d not supported", snap.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range snap.Entries {
		c.entries[k] = v
		if v.OracleID != "" {
			c.byOracle[v.OracleID] = v
		}
	}
	slog.Info("catalog snapshot loaded", "path", path, "entries", len(snap.Entries), "saved_at", snap.SavedAt)
	return nil
}
