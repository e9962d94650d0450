// Package usecase は画像1枚の取り込みパイプラインとバッチインポーターを提供します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/feature/ingest/domain/entity"
)

// Extractor reads card candidates from a deck photo.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type Extractor interface {
	Extract(ctx context.Context, image []byte, hint extraction.CubeHint) (extraction.Extraction, error)
}

// Reconciler binds candidates to catalog cards.
type Reconciler interface {
	Reconcile(ctx context.Context, candidates []extraction.RawCardCandidate, hint extraction.CubeHint) (decks.DeckRecord, error)
}

// DeckStore persists finished deck records.
type DeckStore interface {
	Upsert(ctx context.Context, record decks.DeckRecord) (string, error)
}

// PoolSource returns the card list of a cube. It may be nil.
type PoolSource interface {
	CardPool(ctx context.Context, cubeID string) ([]string, error)
}

// ImageInput is one deck photo with the data submitted alongside it.
type ImageInput struct {
	Data       []byte
	Name       string // file name, informational
	Submission string
	Metadata   entity.Metadata
}

// Pipeline は extraction → reconciliation → persistence を1枚ずつ実行します。
type Pipeline struct {
	extractor  Extractor
	reconciler Reconciler
	store      DeckStore
	pools      PoolSource
	now        func() time.Time
}

// NewPipeline は Pipeline を生成します。pools は nil でも構いません。
func NewPipeline(extractor Extractor, reconciler Reconciler, store DeckStore, pools PoolSource) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		reconciler: reconciler,
		store:      store,
		pools:      pools,
		now:        time.Now,
	}
}

// ProcessImage runs the whole pipeline for one photo and returns the stored
// record. Failures are *entity.StageError values.
func (p *Pipeline) ProcessImage(ctx context.Context, in ImageInput) (decks.DeckRecord, error) {
	hint := p.Hint(ctx, in.Metadata.CubeID)
	ext, err := p.Extract(ctx, in, hint)
	if err != nil {
		return decks.DeckRecord{}, err
	}
	return p.Complete(ctx, in, hint, ext)
}

// Hint builds the cube hint. A pool that cannot be fetched is logged and
// left out; extraction and matching then work against the full catalog.
func (p *Pipeline) Hint(ctx context.Context, cubeID string) extraction.CubeHint {
	hint := extraction.CubeHint{ID: strings.TrimSpace(cubeID)}
	if hint.ID == "" || p.pools == nil {
		return hint
	}
	pool, err := p.pools.CardPool(ctx, hint.ID)
	if err != nil {
		slog.Warn("cube card pool unavailable, matching against full catalog", "cube_id", hint.ID, "error", err)
		return hint
	}
	hint.CardPool = pool
	return hint
}

// Extract runs the vision stage only.
func (p *Pipeline) Extract(ctx context.Context, in ImageInput, hint extraction.CubeHint) (extraction.Extraction, error) {
	ext, err := p.extractor.Extract(ctx, in.Data, hint)
	if err != nil {
		return extraction.Extraction{}, &entity.StageError{Stage: entity.StageExtraction, Err: err}
	}
	return ext, nil
}

// Complete reconciles an extraction and stores the resulting deck.
func (p *Pipeline) Complete(ctx context.Context, in ImageInput, hint extraction.CubeHint, ext extraction.Extraction) (decks.DeckRecord, error) {
	rec, err := p.reconciler.Reconcile(ctx, ext.Candidates, hint)
	if err != nil {
		return decks.DeckRecord{}, &entity.StageError{Stage: entity.StageReconciliation, Err: err}
	}
	if got, want := rec.TotalQuantity(), ext.TotalQuantity(); got != want {
		return decks.DeckRecord{}, &entity.StageError{
			Stage: entity.StageReconciliation,
			Err:   fmt.Errorf("card count changed during reconciliation: extracted %d, reconciled %d", want, got),
		}
	}

	rec.DeckID, rec.ImageSHA256 = decks.DeckIDFromImage(in.Data)
	rec.CubeID = hint.ID
	rec.Pilot = in.Metadata.Pilot
	rec.ProcessedAt = p.now().UTC()
	rec.SourceImage = filepath.Base(in.Name)
	rec.Submission = in.Submission
	rec.Extraction = ext.Summary

	if _, err := p.store.Upsert(ctx, rec); err != nil {
		return decks.DeckRecord{}, &entity.StageError{Stage: entity.StagePersistence, Err: err}
	}

	slog.Info("deck stored",
		"deck_id", rec.DeckID,
		"cube_id", rec.CubeID,
		"pilot", rec.Pilot.Name,
		"resolved", rec.ResolvedQuantity(),
		"unresolved", rec.UnresolvedQuantity(),
		"confidence", ext.Summary.Level,
	)
	return rec, nil
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) entity.Stage {
	var se *entity.StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
