package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	catalog "cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/decks/domain/entity"
)

// DeckRepository abstracts durable storage of deck records.
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type DeckRepository interface {
	// Upsert replaces the record with the same DeckID atomically and
	// returns the stored DeckID.
	Upsert(ctx context.Context, record entity.DeckRecord) (string, error)
	Get(ctx context.Context, deckID string) (*entity.DeckRecord, error)
	ListByCube(ctx context.Context, cubeID string) ([]entity.DeckRecord, error)
	Delete(ctx context.Context, deckID string) error
	// Update loads the record, applies fn and stores the result while holding
	// the deck's write lock, so concurrent updates of one deck never drop
	// each other's changes. The record is not stored when fn fails.
	Update(ctx context.Context, deckID string, fn func(*entity.DeckRecord) error) (*entity.DeckRecord, error)
}

// ManualResolver binds an unresolved entry of a record to a catalog card.
// LookupChoice may call the catalog; ApplyManual only edits the record.
type ManualResolver interface {
	LookupChoice(ctx context.Context, choice entity.ManualResolution) (catalog.CatalogEntry, error)
	ApplyManual(record *entity.DeckRecord, index int, entry catalog.CatalogEntry) error
}

// DeckUsecase は保存済みデッキの参照・削除・手動解決を提供します。
type DeckUsecase interface {
	Get(ctx context.Context, deckID string) (*entity.DeckRecord, error)
	ListByCube(ctx context.Context, cubeID string) ([]entity.DeckRecord, error)
	Delete(ctx context.Context, deckID string) error
	Resolve(ctx context.Context, deckID string, choice entity.ManualResolution) (*entity.DeckRecord, error)
}

type deckInteractor struct {
	repo     DeckRepository
	resolver ManualResolver
}

// NewDeckUsecase は DeckUsecase を生成します。
func NewDeckUsecase(repo DeckRepository, resolver ManualResolver) *deckInteractor {
	return &deckInteractor{repo: repo, resolver: resolver}
}

func (u *deckInteractor) Get(ctx context.Context, deckID string) (*entity.DeckRecord, error) {
	deckID = strings.TrimSpace(deckID)
	if deckID == "" {
		return nil, ErrDeckNotFound
	}
	return u.repo.Get(ctx, deckID)
}

func (u *deckInteractor) ListByCube(ctx context.Context, cubeID string) ([]entity.DeckRecord, error) {
	return u.repo.ListByCube(ctx, strings.TrimSpace(cubeID))
}

func (u *deckInteractor) Delete(ctx context.Context, deckID string) error {
	deckID = strings.TrimSpace(deckID)
	if deckID == "" {
		return ErrDeckNotFound
	}
	if err := u.repo.Delete(ctx, deckID); err != nil {
		return err
	}
	slog.Info("deck deleted", "deck_id", deckID)
	return nil
}

// Resolve binds one unresolved entry to the chosen catalog card and stores
// the updated record. The catalog lookup runs before the deck is locked; the
// entry is located again under the lock so a resolution that landed in the
// meantime is kept.
func (u *deckInteractor) Resolve(ctx context.Context, deckID string, choice entity.ManualResolution) (*entity.DeckRecord, error) {
	deckID = strings.TrimSpace(deckID)
	if _, err := u.Get(ctx, deckID); err != nil {
		return nil, err
	}
	choice.Name = strings.TrimSpace(choice.Name)
	choice.OracleID = strings.TrimSpace(choice.OracleID)
	if choice.Name == "" && choice.OracleID == "" {
		return nil, fmt.Errorf("%w: card name or oracle id is required", ErrInvalidResolution)
	}
	if choice.Index < 0 {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidResolution, choice.Index)
	}

	card, err := u.resolver.LookupChoice(ctx, choice)
	if err != nil {
		return nil, err
	}

	rec, err := u.repo.Update(ctx, deckID, func(rec *entity.DeckRecord) error {
		index, ok := rec.LocateUnresolved(choice.Index, choice.Candidate)
		if !ok {
			if choice.Candidate != "" {
				return fmt.Errorf("%w: no unresolved entry %q", ErrInvalidResolution, choice.Candidate)
			}
			return fmt.Errorf("%w: index %d out of range (%d unresolved)", ErrInvalidResolution, choice.Index, len(rec.Unresolved))
		}
		before := rec.TotalQuantity()
		if err := u.resolver.ApplyManual(rec, index, card); err != nil {
			return err
		}
		if after := rec.TotalQuantity(); after != before {
			return fmt.Errorf("manual resolution changed card count from %d to %d", before, after)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("deck entry resolved manually", "deck_id", rec.DeckID, "index", choice.Index, "name", card.CanonicalName, "oracle_id", card.OracleID)
	return rec, nil
}
