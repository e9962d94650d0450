package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/decks/usecase"
)

// deckUpdateColumns are overwritten when a deck row already exists.
// created_at is kept from the first write.
var deckUpdateColumns = []string{
	"cube_id", "pilot_name", "match_wins", "match_losses", "match_draws", "win_rate",
	"resolved_count", "unresolved_count", "source_image", "image_sha256", "submission",
	"extraction", "processed_at", "updated_at",
}

type deckGorm struct {
	db    *gorm.DB
	locks sync.Map // deck id -> *sync.Mutex
	newID func() string
}

// deckGorm が usecase.DeckRepository を実装していることをコンパイル時に検証します。
var _ usecase.DeckRepository = (*deckGorm)(nil)

// NewDeckRepository は GORM ベースの DeckRepository を生成します。
func NewDeckRepository(db *gorm.DB) *deckGorm {
	return &deckGorm{db: db, newID: uuid.NewString}
}

func (r *deckGorm) lock(deckID string) func() {
	v, _ := r.locks.LoadOrStore(deckID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Upsert writes the deck row and replaces all of its child rows in one
// transaction. A conflicting concurrent write is retried once.
func (r *deckGorm) Upsert(ctx context.Context, record entity.DeckRecord) (string, error) {
	if strings.TrimSpace(record.DeckID) == "" {
		return "", errors.New("deck id is required")
	}
	unlock := r.lock(record.DeckID)
	defer unlock()

	err := r.upsertTx(ctx, record)
	if err != nil && isConflict(err) {
		slog.Warn("deck write conflicted, retrying", "deck_id", record.DeckID, "error", err)
		err = r.upsertTx(ctx, record)
		if err != nil && isConflict(err) {
			return "", fmt.Errorf("%w: deck %s: %v", usecase.ErrPersistenceConflict, record.DeckID, err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to upsert deck %s: %w", record.DeckID, err)
	}
	return record.DeckID, nil
}

func (r *deckGorm) upsertTx(ctx context.Context, record entity.DeckRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.write(tx, record)
	})
}

func (r *deckGorm) write(tx *gorm.DB, record entity.DeckRecord) error {
	deck := toDeckModel(record)
	cards := toCardModels(record.DeckID, record.Resolved)
	unresolved := toUnresolvedModels(record.DeckID, record.Unresolved)
	merges := toMergeModels(record.DeckID, record.Merges, r.newID)

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "deck_id"}},
		DoUpdates: clause.AssignmentColumns(deckUpdateColumns),
	}).Create(&deck).Error; err != nil {
		return err
	}
	if err := deleteChildren(tx, record.DeckID); err != nil {
		return err
	}
	if len(cards) > 0 {
		if err := tx.Create(&cards).Error; err != nil {
			return err
		}
	}
	if len(unresolved) > 0 {
		if err := tx.Create(&unresolved).Error; err != nil {
			return err
		}
	}
	if len(merges) > 0 {
		if err := tx.Create(&merges).Error; err != nil {
			return err
		}
	}
	return nil
}

// Update reads, changes and rewrites one deck inside a single transaction
// under the deck's lock. Postgres also takes a row lock so writers in other
// processes wait for the transaction.
func (r *deckGorm) Update(ctx context.Context, deckID string, fn func(*entity.DeckRecord) error) (*entity.DeckRecord, error) {
	unlock := r.lock(deckID)
	defer unlock()

	var out *entity.DeckRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("deck_id = ?", deckID)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var deck DeckModel
		err := q.First(&deck).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return usecase.ErrDeckNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load deck %s: %w", deckID, err)
		}
		recs, err := loadChildren(tx, []DeckModel{deck})
		if err != nil {
			return err
		}
		rec := recs[0]
		if err := fn(&rec); err != nil {
			return err
		}
		if err := r.write(tx, rec); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil && isConflict(err) {
		return nil, fmt.Errorf("%w: deck %s: %v", usecase.ErrPersistenceConflict, deckID, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func deleteChildren(tx *gorm.DB, deckID string) error {
	for _, m := range []any{&DeckCardModel{}, &UnresolvedCardModel{}, &MergeAuditModel{}} {
		if err := tx.Where("deck_id = ?", deckID).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *deckGorm) Get(ctx context.Context, deckID string) (*entity.DeckRecord, error) {
	var deck DeckModel
	err := r.db.WithContext(ctx).Where("deck_id = ?", deckID).First(&deck).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, usecase.ErrDeckNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load deck %s: %w", deckID, err)
	}

	recs, err := loadChildren(r.db.WithContext(ctx), []DeckModel{deck})
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// ListByCube returns the decks of a cube, newest first.
func (r *deckGorm) ListByCube(ctx context.Context, cubeID string) ([]entity.DeckRecord, error) {
	var decks []DeckModel
	if err := r.db.WithContext(ctx).
		Where("cube_id = ?", cubeID).
		Order("processed_at DESC").
		Order("deck_id").
		Find(&decks).Error; err != nil {
		return nil, fmt.Errorf("failed to list decks for cube %s: %w", cubeID, err)
	}
	if len(decks) == 0 {
		return []entity.DeckRecord{}, nil
	}
	return loadChildren(r.db.WithContext(ctx), decks)
}

func loadChildren(db *gorm.DB, decks []DeckModel) ([]entity.DeckRecord, error) {
	ids := make([]string, 0, len(decks))
	for _, d := range decks {
		ids = append(ids, d.DeckID)
	}

	var cards []DeckCardModel
	if err := db.Where("deck_id IN ?", ids).Order("deck_id").Order("position").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to load deck cards: %w", err)
	}
	var unresolved []UnresolvedCardModel
	if err := db.Where("deck_id IN ?", ids).Order("deck_id").Order("position").Find(&unresolved).Error; err != nil {
		return nil, fmt.Errorf("failed to load unresolved cards: %w", err)
	}
	var merges []MergeAuditModel
	if err := db.Where("deck_id IN ?", ids).Order("deck_id").Order("position").Find(&merges).Error; err != nil {
		return nil, fmt.Errorf("failed to load merge audits: %w", err)
	}

	cardsBy := map[string][]DeckCardModel{}
	for _, c := range cards {
		cardsBy[c.DeckID] = append(cardsBy[c.DeckID], c)
	}
	unresolvedBy := map[string][]UnresolvedCardModel{}
	for _, u := range unresolved {
		unresolvedBy[u.DeckID] = append(unresolvedBy[u.DeckID], u)
	}
	mergesBy := map[string][]MergeAuditModel{}
	for _, m := range merges {
		mergesBy[m.DeckID] = append(mergesBy[m.DeckID], m)
	}

	out := make([]entity.DeckRecord, 0, len(decks))
	for _, d := range decks {
		out = append(out, toEntity(d, cardsBy[d.DeckID], unresolvedBy[d.DeckID], mergesBy[d.DeckID]))
	}
	return out, nil
}

func (r *deckGorm) Delete(ctx context.Context, deckID string) error {
	unlock := r.lock(deckID)
	defer unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, deckID); err != nil {
			return err
		}
		res := tx.Where("deck_id = ?", deckID).Delete(&DeckModel{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete deck %s: %w", deckID, res.Error)
		}
		if res.RowsAffected == 0 {
			return usecase.ErrDeckNotFound
		}
		return nil
	})
}

// isConflict reports whether err is a write race worth one retry.
func isConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
