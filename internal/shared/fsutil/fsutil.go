// Package fsutil holds the filesystem primitives shared by the catalog
// snapshot, the ingest state file and the submission relocation.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// renameFunc is swapped in tests to simulate EXDEV.
var renameFunc = os.Rename

// CrossDeviceError reports a rename across filesystems. Rename returns it;
// MoveNoOverwrite falls back to copying instead.
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("cross-device move %q -> %q: source and destination must share a filesystem: %v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice reports whether err is a CrossDeviceError.
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename wraps os.Rename and tags EXDEV failures as CrossDeviceError.
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, replacing any existing file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return Rename(tmpName, path)
}

// MoveNoOverwrite renames src to dst. When dst already exists a numeric
// suffix (_1, _2, ...) is appended until a free name is found. It returns the
// final destination and whether a collision happened.
//
// When src and dst sit on different filesystems the tree is copied into a
// staging directory next to dst, synced, renamed into place under a free name
// and only then removed from src.
func MoveNoOverwrite(src, dst string) (string, bool, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", false, err
	}

	target, collided, err := freeName(dst)
	if err != nil {
		return "", collided, err
	}

	err = renameFunc(src, target)
	if err == nil {
		return target, collided, nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return "", collided, err
	}
	return copyAcross(src, dst)
}

// freeName returns dst or the first dst_N that does not exist.
func freeName(dst string) (string, bool, error) {
	target := dst
	collided := false
	for i := 1; ; i++ {
		_, err := os.Lstat(target)
		if errors.Is(err, os.ErrNotExist) {
			return target, collided, nil
		}
		if err != nil {
			return "", collided, err
		}
		collided = true
		target = fmt.Sprintf("%s_%d", dst, i)
	}
}

func copyAcross(src, dst string) (string, bool, error) {
	staging, err := os.MkdirTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".copy-*")
	if err != nil {
		return "", false, err
	}
	// Leaves nothing behind: the staging directory is empty after the rename
	// and holds the partial copy on failure.
	defer os.RemoveAll(staging)

	staged := filepath.Join(staging, filepath.Base(src))
	if err := copyTree(src, staged); err != nil {
		return "", false, &CrossDeviceError{Src: src, Dst: dst, Err: err}
	}
	if err := syncDir(staging); err != nil {
		return "", false, err
	}

	// The staging directory shares the destination's filesystem, so this is
	// a plain rename. The free name is picked again because another writer
	// may have taken it during the copy.
	target, collided, err := freeName(dst)
	if err != nil {
		return "", collided, err
	}
	if err := os.Rename(staged, target); err != nil {
		return "", collided, err
	}
	if err := syncDir(filepath.Dir(target)); err != nil {
		return target, collided, err
	}

	if err := os.RemoveAll(src); err != nil {
		return target, collided, fmt.Errorf("copied %q to %q but could not remove the source: %w", src, target, err)
	}
	return target, collided, nil
}

// copyTree copies a file or directory tree, syncing every regular file.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		out := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(out, info.Mode().Perm())
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, out)
		case d.Type().IsRegular():
			return copyFile(path, out, info.Mode().Perm())
		default:
			return fmt.Errorf("cannot copy %q: unsupported file type %s", path, d.Type())
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
