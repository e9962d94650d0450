package adapters

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cube_wizard/internal/feature/ingest/domain/entity"
	"cube_wizard/internal/feature/ingest/usecase"
	"cube_wizard/internal/shared/fsutil"
)

// StateFileName is the per-unit state file kept inside the submission folder.
const StateFileName = "_ingest_state.json"

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp", ".heic", ".heif"}

// IsImageFile reports whether name has an accepted image extension.
func IsImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(name)))
}

type fsStore struct {
	readDir func(name string) ([]os.DirEntry, error)
}

// fsStore が usecase.SubmissionStore を実装していることをコンパイル時に検証します。
var _ usecase.SubmissionStore = (*fsStore)(nil)

// NewFSStore はローカルファイルシステム上の提出フォルダを扱う SubmissionStore を生成します。
func NewFSStore() *fsStore {
	return &fsStore{readDir: os.ReadDir}
}

// Discover lists the subfolders of root as units. Hidden folders are skipped.
// A folder that cannot be read is still returned, with ScanErr set, so that
// the other units of the run are processed.
func (s *fsStore) Discover(root string) ([]entity.Unit, error) {
	entries, err := s.readDir(root)
	if err != nil {
		return nil, err
	}

	var units []entity.Unit
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		unit, err := s.scanUnit(dir)
		if err != nil {
			slog.Warn("submission folder could not be read", "submission", e.Name(), "error", err)
			unit = entity.Unit{Name: e.Name(), Path: dir, ScanErr: err}
		}
		units = append(units, unit)
	}
	return units, nil
}

func (s *fsStore) scanUnit(dir string) (entity.Unit, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return entity.Unit{}, err
	}
	files, err := s.readDir(abs)
	if err != nil {
		return entity.Unit{}, fmt.Errorf("read submission %s: %w", dir, err)
	}

	unit := entity.Unit{Name: filepath.Base(abs), Path: abs}
	var csvs []string
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		switch {
		case strings.EqualFold(filepath.Ext(name), ".csv"):
			csvs = append(csvs, filepath.Join(abs, name))
		case IsImageFile(name):
			unit.Images = append(unit.Images, filepath.Join(abs, name))
		}
	}
	slices.Sort(csvs)
	slices.Sort(unit.Images)
	if len(csvs) > 0 {
		unit.CSVPath = csvs[0]
	}
	return unit, nil
}

func (s *fsStore) LoadState(unit entity.Unit) (entity.SubmissionState, error) {
	data, err := os.ReadFile(filepath.Join(unit.Path, StateFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return entity.NewSubmissionState(), nil
	}
	if err != nil {
		return entity.SubmissionState{}, fmt.Errorf("read state file: %w", err)
	}

	var st entity.SubmissionState
	if err := json.Unmarshal(data, &st); err != nil {
		return entity.SubmissionState{}, fmt.Errorf("parse state file: %w", err)
	}
	if st.Images == nil {
		st.Images = map[string]entity.ImageCheckpoint{}
	}
	return st, nil
}

// SaveState writes the state file atomically.
func (s *fsStore) SaveState(unit entity.Unit, state entity.SubmissionState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(unit.Path, StateFileName), data)
}

func (s *fsStore) ReadImage(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (s *fsStore) Archive(unit entity.Unit, dst string) (string, bool, error) {
	return fsutil.MoveNoOverwrite(unit.Path, dst)
}
