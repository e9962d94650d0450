package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cube_wizard/internal/feature/catalog/domain/entity"
)

var bolt = entity.CatalogEntry{OracleID: "o-bolt", CanonicalName: "Lightning Bolt", SetCode: "lea", EDHRecRank: 4}

func TestCatalogCache_PutGet(t *testing.T) {
	t.Parallel()

	c := NewCatalogCache()
	_, ok := c.Get("lightning bolt")
	assert.False(t, ok)

	c.Put("lightning bolt", bolt)
	got, ok := c.Get("lightning bolt")
	require.True(t, ok)
	assert.Equal(t, bolt, got)

	byOracle, ok := c.ByOracleID("o-bolt")
	require.True(t, ok)
	assert.Equal(t, "Lightning Bolt", byOracle.CanonicalName)
	assert.Equal(t, 1, c.Len())
}

func TestCatalogCache_MissingMarkers(t *testing.T) {
	t.Parallel()

	c := NewCatalogCache()
	c.PutMissing("brainstrom")
	assert.True(t, c.IsMissing("brainstrom"))

	// a later positive entry clears the marker
	c.Put("brainstrom", bolt)
	assert.False(t, c.IsMissing("brainstrom"))
}

func TestCatalogCache_SuggestionsAreCopied(t *testing.T) {
	t.Parallel()

	c := NewCatalogCache()
	in := []string{"Brainstorm", "Brainstone"}
	c.PutSuggestions("suggest|brainstrom", in)
	in[0] = "mutated"

	got, ok := c.GetSuggestions("suggest|brainstrom")
	require.True(t, ok)
	assert.Equal(t, []string{"Brainstorm", "Brainstone"}, got)
}

func TestCatalogCache_InvalidateAndPurge(t *testing.T) {
	t.Parallel()

	c := NewCatalogCache()
	c.Put("lightning bolt", bolt)
	c.PutMissing("nope")
	c.PutSuggestions("suggest|x", []string{"X"})

	c.Invalidate("lightning bolt")
	_, ok := c.Get("lightning bolt")
	assert.False(t, ok)
	_, ok = c.ByOracleID("o-bolt")
	assert.False(t, ok)
	assert.True(t, c.IsMissing("nope"))

	c.Purge()
	assert.False(t, c.IsMissing("nope"))
	_, ok = c.GetSuggestions("suggest|x")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCatalogCache_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")

	c := NewCatalogCache()
	c.Put("lightning bolt", bolt)
	c.PutMissing("brainstrom")
	require.NoError(t, c.Save(path))

	loaded := NewCatalogCache()
	require.NoError(t, loaded.Load(path))

	got, ok := loaded.Get("lightning bolt")
	require.True(t, ok)
	assert.Equal(t, bolt, got)
	assert.False(t, loaded.IsMissing("brainstrom"), "not-found markers are not persisted")
}

func TestCatalogCache_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"empty path", "", false},
		{"missing file", filepath.Join(dir, "absent.json"), false},
		{"corrupt file", write("corrupt.json", "{not json"), true},
		{"unknown version", write("v9.json", `{"version":9,"entries":{}}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewCatalogCache().Load(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCatalogCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewCatalogCache()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Put("lightning bolt", bolt)
		}()
		go func() {
			defer wg.Done()
			_, _ = c.Get("lightning bolt")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
