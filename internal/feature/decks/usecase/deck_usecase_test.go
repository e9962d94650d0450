package usecase_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/decks/usecase"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
)

type mockDeckRepository struct {
	mu          sync.Mutex
	records     map[string]entity.DeckRecord
	UpsertFunc  func(ctx context.Context, record entity.DeckRecord) (string, error)
	upsertCalls int
	updateCalls int
}

func newMockDeckRepository(records ...entity.DeckRecord) *mockDeckRepository {
	m := &mockDeckRepository{records: map[string]entity.DeckRecord{}}
	for _, r := range records {
		m.records[r.DeckID] = r
	}
	return m
}

// clone copies the slices so callers never share backing arrays with the store.
func clone(r entity.DeckRecord) entity.DeckRecord {
	r.Resolved = slices.Clone(r.Resolved)
	r.Unresolved = slices.Clone(r.Unresolved)
	r.Merges = slices.Clone(r.Merges)
	return r
}

func (m *mockDeckRepository) Upsert(ctx context.Context, record entity.DeckRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, record)
	}
	m.records[record.DeckID] = clone(record)
	return record.DeckID, nil
}

func (m *mockDeckRepository) Get(_ context.Context, deckID string) (*entity.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[deckID]
	if !ok {
		return nil, usecase.ErrDeckNotFound
	}
	r = clone(r)
	return &r, nil
}

func (m *mockDeckRepository) ListByCube(_ context.Context, cubeID string) ([]entity.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.DeckRecord
	for _, r := range m.records {
		if r.CubeID == cubeID {
			out = append(out, clone(r))
		}
	}
	return out, nil
}

func (m *mockDeckRepository) Delete(_ context.Context, deckID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[deckID]; !ok {
		return usecase.ErrDeckNotFound
	}
	delete(m.records, deckID)
	return nil
}

func (m *mockDeckRepository) Update(_ context.Context, deckID string, fn func(*entity.DeckRecord) error) (*entity.DeckRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	r, ok := m.records[deckID]
	if !ok {
		return nil, usecase.ErrDeckNotFound
	}
	r = clone(r)
	if err := fn(&r); err != nil {
		return nil, err
	}
	m.records[deckID] = clone(r)
	return &r, nil
}

func (m *mockDeckRepository) stored(deckID string) entity.DeckRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.records[deckID])
}

type mockResolver struct {
	LookupChoiceFunc func(ctx context.Context, choice entity.ManualResolution) (catalog.CatalogEntry, error)
	ApplyManualFunc  func(record *entity.DeckRecord, index int, entry catalog.CatalogEntry) error
}

func (m *mockResolver) LookupChoice(ctx context.Context, choice entity.ManualResolution) (catalog.CatalogEntry, error) {
	if m.LookupChoiceFunc != nil {
		return m.LookupChoiceFunc(ctx, choice)
	}
	name := choice.Name
	if name == "" {
		name = "card " + choice.OracleID
	}
	return catalog.CatalogEntry{OracleID: "oracle-" + name, CanonicalName: name}, nil
}

func (m *mockResolver) ApplyManual(record *entity.DeckRecord, index int, entry catalog.CatalogEntry) error {
	if m.ApplyManualFunc != nil {
		return m.ApplyManualFunc(record, index, entry)
	}
	return moveToResolved(record, index, entry)
}

func deckWithUnresolved() entity.DeckRecord {
	return entity.DeckRecord{
		DeckID: "deck-1",
		CubeID: "vintage",
		Resolved: []entity.ResolvedCard{
			{OracleID: "bolt", CanonicalName: "Lightning Bolt", Quantity: 1, Method: entity.MethodExact},
		},
		Unresolved: []entity.UnresolvedCandidate{
			{Candidate: extraction.RawCardCandidate{Name: "Ancstral Recal", Quantity: 1}, Reason: entity.ReasonBelowThreshold},
		},
	}
}

func moveToResolved(rec *entity.DeckRecord, index int, entry catalog.CatalogEntry) error {
	u := rec.Unresolved[index]
	rec.Unresolved = append(rec.Unresolved[:index], rec.Unresolved[index+1:]...)
	rec.Resolved = append(rec.Resolved, entity.ResolvedCard{
		OracleID: entry.OracleID, CanonicalName: entry.CanonicalName, Quantity: u.Candidate.Quantity, Method: entity.MethodManual,
		SourceNames: []string{u.Candidate.Name},
	})
	return nil
}

func TestDeckUsecase_Get(t *testing.T) {
	t.Parallel()

	uc := usecase.NewDeckUsecase(newMockDeckRepository(deckWithUnresolved()), &mockResolver{})

	got, err := uc.Get(context.Background(), " deck-1 ")
	require.NoError(t, err)
	assert.Equal(t, "vintage", got.CubeID)

	_, err = uc.Get(context.Background(), "")
	assert.ErrorIs(t, err, usecase.ErrDeckNotFound)

	_, err = uc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, usecase.ErrDeckNotFound)
}

func TestDeckUsecase_Delete(t *testing.T) {
	t.Parallel()

	repo := newMockDeckRepository(deckWithUnresolved())
	uc := usecase.NewDeckUsecase(repo, &mockResolver{})

	require.NoError(t, uc.Delete(context.Background(), "deck-1"))
	assert.Empty(t, repo.records)
	assert.ErrorIs(t, uc.Delete(context.Background(), "deck-1"), usecase.ErrDeckNotFound)
}

func TestDeckUsecase_Resolve(t *testing.T) {
	t.Parallel()

	t.Run("moves entry and stores record", func(t *testing.T) {
		t.Parallel()
		repo := newMockDeckRepository(deckWithUnresolved())
		uc := usecase.NewDeckUsecase(repo, &mockResolver{})

		got, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Index: 0, Name: "Ancestral Recall"})
		require.NoError(t, err)
		assert.Empty(t, got.Unresolved)
		assert.Len(t, got.Resolved, 2)
		assert.Equal(t, 2, got.TotalQuantity())
		assert.Equal(t, 1, repo.updateCalls)
		assert.Empty(t, repo.stored("deck-1").Unresolved)
	})

	t.Run("oracle id choice", func(t *testing.T) {
		t.Parallel()
		repo := newMockDeckRepository(deckWithUnresolved())
		var seen entity.ManualResolution
		uc := usecase.NewDeckUsecase(repo, &mockResolver{LookupChoiceFunc: func(_ context.Context, choice entity.ManualResolution) (catalog.CatalogEntry, error) {
			seen = choice
			return catalog.CatalogEntry{OracleID: choice.OracleID, CanonicalName: "Ancestral Recall"}, nil
		}})

		got, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Index: 0, OracleID: " 2398892d-28e9-4009-81ec-0d544af79d2b "})
		require.NoError(t, err)
		assert.Equal(t, "2398892d-28e9-4009-81ec-0d544af79d2b", seen.OracleID)
		assert.Equal(t, "2398892d-28e9-4009-81ec-0d544af79d2b", got.Resolved[1].OracleID)
	})

	t.Run("unknown deck", func(t *testing.T) {
		t.Parallel()
		uc := usecase.NewDeckUsecase(newMockDeckRepository(), &mockResolver{})

		_, err := uc.Resolve(context.Background(), "missing", entity.ManualResolution{Name: "Ancestral Recall"})
		assert.ErrorIs(t, err, usecase.ErrDeckNotFound)
	})

	t.Run("index out of range", func(t *testing.T) {
		t.Parallel()
		repo := newMockDeckRepository(deckWithUnresolved())
		uc := usecase.NewDeckUsecase(repo, &mockResolver{})

		_, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Index: 3, Name: "Ancestral Recall"})
		assert.ErrorIs(t, err, usecase.ErrInvalidResolution)
		assert.Len(t, repo.stored("deck-1").Unresolved, 1)

		_, err = uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Index: -1, Name: "Ancestral Recall"})
		assert.ErrorIs(t, err, usecase.ErrInvalidResolution)
	})

	t.Run("candidate no longer unresolved", func(t *testing.T) {
		t.Parallel()
		repo := newMockDeckRepository(deckWithUnresolved())
		uc := usecase.NewDeckUsecase(repo, &mockResolver{})

		_, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Index: 0, Candidate: "Sol Rng", Name: "Sol Ring"})
		assert.ErrorIs(t, err, usecase.ErrInvalidResolution)
		assert.Len(t, repo.stored("deck-1").Unresolved, 1)
	})

	t.Run("empty name and oracle id", func(t *testing.T) {
		t.Parallel()
		uc := usecase.NewDeckUsecase(newMockDeckRepository(deckWithUnresolved()), &mockResolver{})

		_, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Name: "  "})
		assert.ErrorIs(t, err, usecase.ErrInvalidResolution)
	})

	t.Run("lookup error is returned", func(t *testing.T) {
		t.Parallel()
		want := errors.New("card not found")
		repo := newMockDeckRepository(deckWithUnresolved())
		uc := usecase.NewDeckUsecase(repo, &mockResolver{LookupChoiceFunc: func(context.Context, entity.ManualResolution) (catalog.CatalogEntry, error) {
			return catalog.CatalogEntry{}, want
		}})

		_, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Name: "Nope"})
		assert.ErrorIs(t, err, want)
		assert.Zero(t, repo.updateCalls)
	})

	t.Run("count change is rejected", func(t *testing.T) {
		t.Parallel()
		repo := newMockDeckRepository(deckWithUnresolved())
		uc := usecase.NewDeckUsecase(repo, &mockResolver{ApplyManualFunc: func(rec *entity.DeckRecord, _ int, _ catalog.CatalogEntry) error {
			rec.Unresolved = nil
			return nil
		}})

		_, err := uc.Resolve(context.Background(), "deck-1", entity.ManualResolution{Name: "Ancestral Recall"})
		require.Error(t, err)
		assert.Len(t, repo.stored("deck-1").Unresolved, 1)
	})
}

// TestDeckUsecase_ResolveConcurrently は同じデッキの別エントリを並行して解決しても両方の結果が保存されることを検証します。
func TestDeckUsecase_ResolveConcurrently(t *testing.T) {
	t.Parallel()

	deck := deckWithUnresolved()
	deck.Unresolved = append(deck.Unresolved, entity.UnresolvedCandidate{
		Candidate: extraction.RawCardCandidate{Name: "Tme Walk", Quantity: 1}, Reason: entity.ReasonNotFound,
	})
	repo := newMockDeckRepository(deck)

	// Both lookups finish before either write, so each caller read the
	// original indices.
	var ready sync.WaitGroup
	ready.Add(2)
	resolver := &mockResolver{LookupChoiceFunc: func(_ context.Context, choice entity.ManualResolution) (catalog.CatalogEntry, error) {
		ready.Done()
		ready.Wait()
		return catalog.CatalogEntry{OracleID: "oracle-" + choice.Name, CanonicalName: choice.Name}, nil
	}}
	uc := usecase.NewDeckUsecase(repo, resolver)

	choices := []entity.ManualResolution{
		{Index: 0, Candidate: "Ancstral Recal", Name: "Ancestral Recall"},
		{Index: 1, Candidate: "Tme Walk", Name: "Time Walk"},
	}
	var wg sync.WaitGroup
	for _, choice := range choices {
		wg.Add(1)
		go func(choice entity.ManualResolution) {
			defer wg.Done()
			_, err := uc.Resolve(context.Background(), "deck-1", choice)
			assert.NoError(t, err)
		}(choice)
	}
	wg.Wait()

	got := repo.stored("deck-1")
	assert.Empty(t, got.Unresolved)
	var names []string
	for _, c := range got.Resolved {
		names = append(names, c.CanonicalName)
	}
	assert.ElementsMatch(t, []string{"Lightning Bolt", "Ancestral Recall", "Time Walk"}, names)
	assert.Equal(t, 3, got.TotalQuantity())
}
