package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/feature/ingest/domain/entity"
)

// SubmissionStore is the filesystem boundary of the batch importer.
type SubmissionStore interface {
	Discover(root string) ([]entity.Unit, error)
	LoadState(unit entity.Unit) (entity.SubmissionState, error)
	SaveState(unit entity.Unit, state entity.SubmissionState) error
	ReadImage(path string) ([]byte, error)
	// Archive moves the unit folder to dst without overwriting. It returns
	// the final path and whether dst was already taken.
	Archive(unit entity.Unit, dst string) (string, bool, error)
}

// MetadataReader reads pilot and cube data for a unit.
type MetadataReader interface {
	Read(ctx context.Context, unit entity.Unit) (entity.Metadata, error)
}

// ImagePipeline is the part of Pipeline the batch importer drives.
type ImagePipeline interface {
	Hint(ctx context.Context, cubeID string) extraction.CubeHint
	Extract(ctx context.Context, in ImageInput, hint extraction.CubeHint) (extraction.Extraction, error)
	Complete(ctx context.Context, in ImageInput, hint extraction.CubeHint, ext extraction.Extraction) (decks.DeckRecord, error)
}

// Pipeline が ImagePipeline を実装していることをコンパイル時に検証します。
var _ ImagePipeline = (*Pipeline)(nil)

// BatchImporter は提出フォルダ群を並列に取り込みます。
type BatchImporter struct {
	pipeline ImagePipeline
	store    SubmissionStore
	metadata MetadataReader
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// NewBatchImporter は BatchImporter を生成します。
func NewBatchImporter(pipeline ImagePipeline, store SubmissionStore, metadata MetadataReader, cfg Config) *BatchImporter {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ImportedDir == "" {
		cfg.ImportedDir = DefaultImportedDir
	}
	return &BatchImporter{
		pipeline: pipeline,
		store:    store,
		metadata: metadata,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Run processes every unit under root. A failing unit never affects the
// others; the error return is reserved for failures to list the root.
func (b *BatchImporter) Run(ctx context.Context, root string) (entity.BatchReport, error) {
	report := entity.BatchReport{RunID: b.newID(), StartedAt: b.now().UTC()}

	units, err := b.store.Discover(root)
	if err != nil {
		return report, fmt.Errorf("failed to list submissions in %s: %w", root, err)
	}
	slog.Info("batch import started", "run_id", report.RunID, "root", root, "units", len(units), "workers", b.cfg.Workers)

	outcomes := make([]entity.UnitOutcome, len(units))
	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for i, unit := range units {
		// stop scheduling once the run is canceled; started units finish their current image
		if ctx.Err() != nil {
			outcomes[i] = notStarted(unit, ctx.Err())
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = notStarted(unit, ctx.Err())
				return nil
			}
			outcomes[i] = b.processUnit(ctx, unit)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(outcomes, func(a, b entity.UnitOutcome) int { return strings.Compare(a.Name, b.Name) })
	report.Units = outcomes
	for _, o := range outcomes {
		switch o.State {
		case entity.StateCompleted:
			report.Completed++
		case entity.StatePending:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	report.FinishedAt = b.now().UTC()

	slog.Info("batch import finished",
		"run_id", report.RunID,
		"completed", report.Completed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"elapsed", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// notStarted reports a unit left untouched because the run was canceled.
func notStarted(unit entity.Unit, err error) entity.UnitOutcome {
	return entity.UnitOutcome{Name: unit.Name, State: entity.StatePending, Reason: "not started: " + err.Error()}
}

func (b *BatchImporter) processUnit(ctx context.Context, unit entity.Unit) entity.UnitOutcome {
	log := slog.With("submission", unit.Name)
	out := entity.UnitOutcome{Name: unit.Name}

	if unit.ScanErr != nil {
		log.Warn("submission failed", "stage", entity.StageMetadata, "error", unit.ScanErr)
		out.State = entity.StateFailed
		out.Stage = entity.StageMetadata
		out.Reason = unit.ScanErr.Error()
		return out
	}

	state, err := b.store.LoadState(unit)
	if err != nil {
		log.Warn("unreadable submission state, starting over", "error", err)
		state = entity.NewSubmissionState()
	}
	if state.Images == nil {
		state.Images = map[string]entity.ImageCheckpoint{}
	}

	switch state.State {
	case entity.StateCompleted:
		// a previous run finished but could not move the folder
		return b.archive(unit, state, out, log)
	case entity.StateProcessing:
		log.Warn("submission was left in processing, treating as pending")
		_ = state.Transition(entity.StatePending, b.now())
	case "":
		state.State = entity.StatePending
	}

	if err := state.Transition(entity.StateProcessing, b.now()); err != nil {
		return b.fail(unit, &state, out, entity.StageMetadata, err, log)
	}
	state.Attempts++
	if err := b.store.SaveState(unit, state); err != nil {
		log.Error("failed to save submission state", "error", err)
	}

	meta, err := b.metadata.Read(ctx, unit)
	if err != nil {
		return b.fail(unit, &state, out, entity.StageMetadata, err, log)
	}
	if len(unit.Images) == 0 {
		return b.fail(unit, &state, out, entity.StageMetadata, ErrNoImages, log)
	}

	hint := b.pipeline.Hint(ctx, meta.CubeID)
	var firstErr error
	for _, path := range unit.Images {
		deckID, err := b.processImage(ctx, unit, &state, meta, hint, path)
		if err != nil {
			log.Error("image failed", "image", filepath.Base(path), "stage", StageOf(err), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		out.DeckIDs = append(out.DeckIDs, deckID)
	}
	if firstErr != nil {
		stage := StageOf(firstErr)
		if stage == "" {
			stage = entity.StageExtraction
		}
		return b.fail(unit, &state, out, stage, firstErr, log)
	}

	if err := state.Transition(entity.StateCompleted, b.now()); err != nil {
		return b.fail(unit, &state, out, entity.StagePersistence, err, log)
	}
	if err := b.store.SaveState(unit, state); err != nil {
		log.Error("failed to save submission state", "error", err)
	}
	return b.archive(unit, state, out, log)
}

// processImage runs one image, resuming from the checkpoint when the same
// bytes were already extracted or stored.
func (b *BatchImporter) processImage(ctx context.Context, unit entity.Unit, state *entity.SubmissionState, meta entity.Metadata, hint extraction.CubeHint, path string) (string, error) {
	key := filepath.Base(path)
	data, err := b.store.ReadImage(path)
	if err != nil {
		return "", &entity.StageError{Stage: entity.StageExtraction, Err: fmt.Errorf("read image: %w", err)}
	}
	deckID, sum := decks.DeckIDFromImage(data)

	cp, ok := state.Images[key]
	if !ok || cp.SHA256 != sum {
		cp = entity.ImageCheckpoint{SHA256: sum, DeckID: deckID}
	}
	if cp.Persisted {
		slog.Debug("image already stored, skipping", "submission", unit.Name, "image", key, "deck_id", deckID)
		return deckID, nil
	}

	in := ImageInput{Data: data, Name: key, Submission: unit.Name, Metadata: meta}
	save := func(stage entity.Stage, err error) {
		cp.Stage, cp.Error = stage, ""
		if err != nil {
			cp.Error = err.Error()
		}
		state.Images[key] = cp
		if serr := b.store.SaveState(unit, *state); serr != nil {
			slog.Error("failed to save submission state", "submission", unit.Name, "error", serr)
		}
	}

	if cp.Extraction == nil {
		ext, err := b.pipeline.Extract(ctx, in, hint)
		if err != nil {
			save(entity.StageExtraction, err)
			return "", err
		}
		cp.Extraction = &ext
		save("", nil)
	} else {
		slog.Info("reusing checkpointed extraction", "submission", unit.Name, "image", key)
	}

	if _, err := b.pipeline.Complete(ctx, in, hint, *cp.Extraction); err != nil {
		save(StageOf(err), err)
		return "", err
	}
	cp.Persisted = true
	save("", nil)
	return deckID, nil
}

func (b *BatchImporter) fail(unit entity.Unit, state *entity.SubmissionState, out entity.UnitOutcome, stage entity.Stage, err error, log *slog.Logger) entity.UnitOutcome {
	if state.State != entity.StateFailed {
		if terr := state.Transition(entity.StateFailed, b.now()); terr != nil {
			log.Error("unexpected submission state", "state", state.State, "error", terr)
		}
	}
	state.Stage = stage
	state.Reason = err.Error()
	if serr := b.store.SaveState(unit, *state); serr != nil {
		log.Error("failed to save submission state", "error", serr)
	}
	log.Warn("submission failed", "stage", stage, "attempts", state.Attempts, "error", err)

	out.State = entity.StateFailed
	out.Stage = stage
	out.Reason = err.Error()
	out.DeckIDs = nil
	return out
}

func (b *BatchImporter) archive(unit entity.Unit, state entity.SubmissionState, out entity.UnitOutcome, log *slog.Logger) entity.UnitOutcome {
	if len(out.DeckIDs) == 0 {
		for _, cp := range state.Images {
			if cp.Persisted {
				out.DeckIDs = append(out.DeckIDs, cp.DeckID)
			}
		}
		slices.Sort(out.DeckIDs)
	}

	dst := filepath.Join(b.cfg.ImportedDir, unit.Name+"_"+b.now().Format("20060102_150405"))
	final, collided, err := b.store.Archive(unit, dst)
	if err != nil {
		log.Error("failed to move submission to imported area", "destination", dst, "error", err)
		out.State = entity.StateFailed
		out.Stage = entity.StageRelocation
		out.Reason = err.Error()
		return out
	}
	if collided {
		log.Warn("imported destination already existed, possible reprocessing", "wanted", dst, "destination", final)
	}
	log.Info("submission imported", "destination", final, "decks", len(out.DeckIDs))

	out.State = entity.StateCompleted
	out.Destination = final
	return out
}
