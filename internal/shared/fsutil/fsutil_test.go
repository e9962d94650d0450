package fsutil

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":1}`)))
	require.NoError(t, WriteFileAtomic(path, []byte(`{"a":2}`)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestMoveNoOverwrite(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mk := func(name string) string {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(p, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p, "marker"), []byte(name), 0o644))
		return p
	}

	dst := filepath.Join(root, "imported", "deck_20250101_120000")

	got, collided, err := MoveNoOverwrite(mk("first"), dst)
	require.NoError(t, err)
	assert.False(t, collided)
	assert.Equal(t, dst, got)

	got, collided, err = MoveNoOverwrite(mk("second"), dst)
	require.NoError(t, err)
	assert.True(t, collided)
	assert.Equal(t, dst+"_1", got)

	got, collided, err = MoveNoOverwrite(mk("third"), dst)
	require.NoError(t, err)
	assert.True(t, collided)
	assert.Equal(t, dst+"_2", got)

	marker, err := os.ReadFile(filepath.Join(dst, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(marker), "existing destination must not be overwritten")
}

// TestRename_CrossDevice はrenameFuncを差し替えるため並列実行しない。
func TestRename_CrossDevice(t *testing.T) {
	orig := renameFunc
	t.Cleanup(func() { renameFunc = orig })
	renameFunc = func(src, dst string) error {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
	}

	err := Rename("/a", "/b")
	require.Error(t, err)
	assert.True(t, IsCrossDevice(err))
	assert.ErrorIs(t, err, syscall.EXDEV)
}

func forceCrossDevice(t *testing.T) {
	t.Helper()
	orig := renameFunc
	t.Cleanup(func() { renameFunc = orig })
	renameFunc = func(src, dst string) error {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: syscall.EXDEV}
	}
}

// TestMoveNoOverwrite_CrossDeviceCopies はEXDEV時にツリーをコピーしてから元を削除することを検証します。
// renameFuncを差し替えるため並列実行しない。
func TestMoveNoOverwrite_CrossDeviceCopies(t *testing.T) {
	forceCrossDevice(t)

	root := t.TempDir()
	src := filepath.Join(root, "incoming", "alice")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "extra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "deck.jpg"), []byte("jpeg bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "extra", "notes.txt"), []byte("2-1"), 0o600))

	dst := filepath.Join(root, "imported", "alice")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	got, collided, err := MoveNoOverwrite(src, dst)
	require.NoError(t, err)
	assert.True(t, collided)
	assert.Equal(t, dst+"_1", got)

	data, err := os.ReadFile(filepath.Join(got, "deck.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	info, err := os.Stat(filepath.Join(got, "extra", "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = os.Stat(src)
	assert.ErrorIs(t, err, os.ErrNotExist, "source must be removed after the copy")

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"alice", "alice_1"}, names, "staging directories must not be left behind")
}

// TestMoveNoOverwrite_CrossDeviceCopyFailureKeepsSource はコピーに失敗した場合に元のフォルダが残ることを検証します。
// renameFuncを差し替えるため並列実行しない。
func TestMoveNoOverwrite_CrossDeviceCopyFailureKeepsSource(t *testing.T) {
	forceCrossDevice(t)

	root := t.TempDir()
	src := filepath.Join(root, "incoming", "bob")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "deck.jpg"), []byte("jpeg bytes"), 0o644))
	require.NoError(t, syscall.Mkfifo(filepath.Join(src, "pipe"), 0o644))

	dst := filepath.Join(root, "imported", "bob")
	_, _, err := MoveNoOverwrite(src, dst)
	require.Error(t, err)
	assert.True(t, IsCrossDevice(err))

	_, err = os.Stat(filepath.Join(src, "deck.jpg"))
	assert.NoError(t, err, "source must survive a failed copy")
	_, err = os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
