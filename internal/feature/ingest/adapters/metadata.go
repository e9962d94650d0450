package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/ingest/domain/entity"
	"cube_wizard/internal/feature/ingest/usecase"
)

// Column aliases accepted in the submission form export.
var (
	pilotFields  = []string{"Pilot Name", "pilot_name", "name", "Player Name", "player_name"}
	winsFields   = []string{"Match Wins", "match_wins", "wins", "Win Count", "win_count"}
	lossesFields = []string{"Match Losses", "match_losses", "losses", "Loss Count", "loss_count"}
	drawsFields  = []string{"Match Draws", "match_draws", "draws", "Draw Count", "draw_count"}
	cubeFields   = []string{"Cube ID", "cube_id", "Cube Name", "cube_name", "Cube", "cube"}
)

var (
	recordPattern   = regexp.MustCompile(`^(.+?)\s+(\d+)-(\d+)(?:-(\d+))?$`)
	duplicateSuffix = regexp.MustCompile(`\s*\(\d+\)$`)
)

// CubeMapping translates human-readable cube names to cube ids.
type CubeMapping map[string]string

// LoadCubeMapping reads a "cube_name,cube_id[,description]" CSV. A missing
// file yields an empty mapping.
func LoadCubeMapping(path string) (CubeMapping, error) {
	m := CubeMapping{}
	if path == "" {
		return m, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("cube mapping file not found", "path", path)
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := readRows(f)
	if err != nil {
		return nil, fmt.Errorf("parse cube mapping %s: %w", path, err)
	}
	for _, row := range rows {
		name, id := strings.TrimSpace(row["cube_name"]), strings.TrimSpace(row["cube_id"])
		if name != "" && id != "" {
			m[name] = id
		}
	}
	return m, nil
}

// Resolve returns the cube id for ref, or ref itself when it is not a known name.
func (m CubeMapping) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if id, ok := m[ref]; ok {
		return id
	}
	return ref
}

type metadataReader struct {
	cubes       CubeMapping
	defaultCube string
}

// metadataReader が usecase.MetadataReader を実装していることをコンパイル時に検証します。
var _ usecase.MetadataReader = (*metadataReader)(nil)

// NewMetadataReader は提出メタデータの読み取りを生成します。defaultCube は
// 提出側にキューブ指定がない場合に使われます。
func NewMetadataReader(cubes CubeMapping, defaultCube string) *metadataReader {
	if cubes == nil {
		cubes = CubeMapping{}
	}
	return &metadataReader{cubes: cubes, defaultCube: defaultCube}
}

// Read takes metadata from the unit's CSV, or from the first image's file
// name when the unit has no CSV.
func (r *metadataReader) Read(_ context.Context, unit entity.Unit) (entity.Metadata, error) {
	var (
		meta entity.Metadata
		err  error
	)
	switch {
	case unit.CSVPath != "":
		f, oerr := os.Open(unit.CSVPath)
		if oerr != nil {
			return entity.Metadata{}, fmt.Errorf("%w: %v", usecase.ErrInvalidMetadata, oerr)
		}
		defer f.Close()
		meta, err = ParseSubmissionCSV(f)
	case len(unit.Images) > 0:
		meta, err = ParseFilename(filepath.Base(unit.Images[0]))
	default:
		return entity.Metadata{}, fmt.Errorf("%w: no csv file and no images", usecase.ErrInvalidMetadata)
	}
	if err != nil {
		return entity.Metadata{}, err
	}

	if meta.CubeRef == "" {
		meta.CubeRef = r.defaultCube
	}
	meta.CubeID = r.cubes.Resolve(meta.CubeRef)
	return meta, nil
}

// ParseSubmissionCSV reads pilot, record and cube from the first data row.
func ParseSubmissionCSV(rd io.Reader) (entity.Metadata, error) {
	rows, err := readRows(rd)
	if err != nil {
		return entity.Metadata{}, fmt.Errorf("%w: %v", usecase.ErrInvalidMetadata, err)
	}
	if len(rows) == 0 {
		return entity.Metadata{}, fmt.Errorf("%w: csv has no data rows", usecase.ErrInvalidMetadata)
	}
	row := rows[0]

	pilot := firstValue(row, pilotFields)
	if pilot == "" {
		return entity.Metadata{}, fmt.Errorf("%w: no pilot name column", usecase.ErrInvalidMetadata)
	}
	wins, okW := firstInt(row, winsFields)
	losses, okL := firstInt(row, lossesFields)
	if !okW || !okL {
		return entity.Metadata{}, fmt.Errorf("%w: no wins/losses columns", usecase.ErrInvalidMetadata)
	}
	draws, _ := firstInt(row, drawsFields)
	if wins < 0 || losses < 0 || draws < 0 {
		return entity.Metadata{}, fmt.Errorf("%w: invalid match record %d-%d-%d", usecase.ErrInvalidMetadata, wins, losses, draws)
	}

	return entity.Metadata{
		Pilot:   decks.Pilot{Name: pilot, MatchWins: wins, MatchLosses: losses, MatchDraws: draws},
		CubeRef: firstValue(row, cubeFields),
		Source:  "csv",
	}, nil
}

// ParseFilename reads "<Pilot> W-L" or "<Pilot> W-L-D" from an image file
// name. A trailing " (n)" added by file copies is ignored.
func ParseFilename(name string) (entity.Metadata, error) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimSpace(duplicateSuffix.ReplaceAllString(strings.TrimSpace(base), ""))

	m := recordPattern.FindStringSubmatch(base)
	if m == nil {
		return entity.Metadata{}, fmt.Errorf("%w: file name %q is not \"<Pilot> W-L[-D]\"", usecase.ErrInvalidMetadata, name)
	}
	wins, _ := strconv.Atoi(m[2])
	losses, _ := strconv.Atoi(m[3])
	draws := 0
	if m[4] != "" {
		draws, _ = strconv.Atoi(m[4])
	}
	return entity.Metadata{
		Pilot:  decks.Pilot{Name: strings.TrimSpace(m[1]), MatchWins: wins, MatchLosses: losses, MatchDraws: draws},
		Source: "filename",
	}, nil
}

// readRows parses a CSV with a header row into maps keyed by header.
func readRows(rd io.Reader) ([]map[string]string, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[strings.TrimSpace(h)] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// firstValue returns the first non-empty column among aliases. Aliases
// match case-insensitively.
func firstValue(row map[string]string, aliases []string) string {
	for _, a := range aliases {
		for k, v := range row {
			if strings.EqualFold(k, a) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func firstInt(row map[string]string, aliases []string) (int, bool) {
	for _, a := range aliases {
		for k, v := range row {
			if !strings.EqualFold(k, a) {
				continue
			}
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
