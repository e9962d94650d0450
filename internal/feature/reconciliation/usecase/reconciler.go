// Package usecase はカード候補をカタログエントリに照合するリコンシリエーションを提供します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	catalog "cube_wizard/internal/feature/catalog/domain/entity"
	catalogusecase "cube_wizard/internal/feature/catalog/usecase"
	decks "cube_wizard/internal/feature/decks/domain/entity"
	decksusecase "cube_wizard/internal/feature/decks/usecase"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/shared/cardname"
)

// maxAlternatives caps the names kept for review on an unresolved entry.
const maxAlternatives = 5

// Reconciler は候補を解決し、重複をマージしてデッキを組み立てます。
type Reconciler struct {
	catalog   catalogusecase.Catalog
	threshold float64
	tie       TieBreaker
	newID     func() string
}

// Reconciler が decksusecase.ManualResolver を実装していることをコンパイル時に検証します。
var _ decksusecase.ManualResolver = (*Reconciler)(nil)

// NewReconciler は Reconciler を生成します。
func NewReconciler(c catalogusecase.Catalog, cfg Config) (*Reconciler, error) {
	tie, err := TieBreakerFor(cfg.TieBreak)
	if err != nil {
		return nil, err
	}
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Reconciler{catalog: c, threshold: threshold, tie: tie, newID: uuid.NewString}, nil
}

// outcome is the result of resolving one candidate.
type outcome struct {
	entry      catalog.CatalogEntry
	confidence float64
	method     decks.ResolutionMethod

	reason       decks.UnresolvedReason
	bestGuess    string
	bestScore    float64
	alternatives []string
}

func (o outcome) resolved() bool { return o.reason == "" }

// Reconcile resolves every candidate in input order. Candidates that cannot
// be bound become unresolved entries, so the returned record always holds
// the same total quantity as the input. Only context cancellation is
// returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []extraction.RawCardCandidate, hint extraction.CubeHint) (decks.DeckRecord, error) {
	rec := decks.DeckRecord{
		CubeID:     hint.ID,
		Resolved:   []decks.ResolvedCard{},
		Unresolved: []decks.UnresolvedCandidate{},
	}
	pool := newPool(hint.CardPool)

	for _, cand := range candidates {
		out, err := r.resolve(ctx, cand, pool)
		if err != nil {
			return decks.DeckRecord{}, err
		}
		if !out.resolved() {
			rec.Unresolved = append(rec.Unresolved, decks.UnresolvedCandidate{
				Candidate:    cand,
				Reason:       out.reason,
				BestGuess:    out.bestGuess,
				BestScore:    out.bestScore,
				Alternatives: out.alternatives,
			})
			slog.Debug("card unresolved", "card", cand.Name, "reason", out.reason, "best_guess", out.bestGuess, "score", out.bestScore)
			continue
		}
		r.addResolved(&rec, decks.NewResolvedCard(out.entry, cand.Quantity, out.confidence, out.method, cand.Name))
	}

	slog.Info("deck reconciled",
		"cube_id", hint.ID,
		"resolved", len(rec.Resolved),
		"unresolved", len(rec.Unresolved),
		"merges", len(rec.Merges),
	)
	return rec, nil
}

// LookupChoice finds the catalog card a reviewer picked. An oracle id is
// looked up directly; otherwise the name goes through the exact lookup.
func (r *Reconciler) LookupChoice(ctx context.Context, choice decks.ManualResolution) (catalog.CatalogEntry, error) {
	if choice.OracleID != "" {
		if _, err := uuid.Parse(choice.OracleID); err != nil {
			return catalog.CatalogEntry{}, fmt.Errorf("%w: malformed oracle id %q", decksusecase.ErrInvalidResolution, choice.OracleID)
		}
		entry, err := r.catalog.LookupOracleID(ctx, choice.OracleID)
		if err != nil {
			return catalog.CatalogEntry{}, fmt.Errorf("failed to look up oracle id %s: %w", choice.OracleID, err)
		}
		return entry, nil
	}
	if choice.Name == "" {
		return catalog.CatalogEntry{}, fmt.Errorf("%w: card name or oracle id is required", decksusecase.ErrInvalidResolution)
	}
	entry, err := r.catalog.Lookup(ctx, choice.Name, "")
	if err != nil {
		return catalog.CatalogEntry{}, fmt.Errorf("failed to look up %q: %w", choice.Name, err)
	}
	return entry, nil
}

// ApplyManual moves the unresolved entry at index into the resolved list as
// entry, merging with an existing line of the same card.
func (r *Reconciler) ApplyManual(rec *decks.DeckRecord, index int, entry catalog.CatalogEntry) error {
	if index < 0 || index >= len(rec.Unresolved) {
		return fmt.Errorf("%w: index %d out of range", decksusecase.ErrInvalidResolution, index)
	}
	u := rec.Unresolved[index]
	rec.Unresolved = slices.Delete(slices.Clone(rec.Unresolved), index, index+1)
	r.addResolved(rec, decks.NewResolvedCard(entry, u.Candidate.Quantity, 1.0, decks.MethodManual, u.Candidate.Name))
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, cand extraction.RawCardCandidate, pool cardPool) (outcome, error) {
	norm := cardname.Normalize(cand.Name)
	if norm == "" {
		return outcome{reason: decks.ReasonNotFound}, nil
	}

	entry, err := r.catalog.Lookup(ctx, cand.Name, "")
	switch {
	case err == nil:
		return outcome{entry: entry, confidence: 1.0, method: decks.MethodExact}, nil
	case errors.Is(err, catalogusecase.ErrCardNotFound):
	case ctx.Err() != nil:
		return outcome{}, ctx.Err()
	default:
		return outcome{reason: decks.ReasonCatalogUnavailable}, nil
	}

	names := pool.names
	if len(names) == 0 {
		names, err = r.catalog.Suggest(ctx, cand.Name)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}, ctx.Err()
			}
			if errors.Is(err, catalogusecase.ErrCardNotFound) {
				return outcome{reason: decks.ReasonNotFound}, nil
			}
			return outcome{reason: decks.ReasonCatalogUnavailable}, nil
		}
		names = sortedUnique(names)
	}
	if len(names) == 0 {
		return outcome{reason: decks.ReasonNotFound}, nil
	}

	best, top, alternatives := rank(norm, names)
	if best < r.threshold {
		return outcome{
			reason:       decks.ReasonBelowThreshold,
			bestGuess:    top[0],
			bestScore:    best,
			alternatives: alternatives,
		}, nil
	}

	entries, unavailable, err := r.lookupAll(ctx, top)
	if err != nil {
		return outcome{}, err
	}
	if len(entries) == 0 {
		reason := decks.ReasonNotFound
		if unavailable {
			reason = decks.ReasonCatalogUnavailable
		}
		return outcome{reason: reason, bestGuess: top[0], bestScore: best, alternatives: alternatives}, nil
	}

	chosen, err := r.breakTie(entries, pool)
	if err != nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.CanonicalName)
		}
		slog.Warn("ambiguous card match", "card", cand.Name, "score", best, "alternatives", names)
		return outcome{reason: decks.ReasonAmbiguous, bestGuess: top[0], bestScore: best, alternatives: names}, nil
	}
	return outcome{entry: chosen, confidence: best, method: decks.MethodFuzzy}, nil
}

// rank scores names against the candidate. It returns the best score, the
// names sharing it and the top alternatives overall.
func rank(norm string, names []string) (float64, []string, []string) {
	type scored struct {
		name  string
		score float64
	}
	all := make([]scored, 0, len(names))
	for _, n := range names {
		all = append(all, scored{name: n, score: scoreName(norm, n)})
	}
	slices.SortStableFunc(all, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	best := all[0].score
	var top []string
	alternatives := make([]string, 0, maxAlternatives)
	for i, s := range all {
		if s.score == best {
			top = append(top, s.name)
		}
		if i < maxAlternatives {
			alternatives = append(alternatives, s.name)
		}
	}
	return best, top, alternatives
}

// lookupAll fetches the catalog entries of the tied names, dropping
// duplicates by OracleID.
func (r *Reconciler) lookupAll(ctx context.Context, names []string) ([]catalog.CatalogEntry, bool, error) {
	var entries []catalog.CatalogEntry
	seen := map[string]struct{}{}
	unavailable := false
	for _, n := range names {
		e, err := r.catalog.Lookup(ctx, n, "")
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			if !errors.Is(err, catalogusecase.ErrCardNotFound) {
				unavailable = true
			}
			continue
		}
		if _, ok := seen[e.OracleID]; ok {
			continue
		}
		seen[e.OracleID] = struct{}{}
		entries = append(entries, e)
	}
	return entries, unavailable, nil
}

// breakTie prefers entries in the cube pool, then defers to the policy.
func (r *Reconciler) breakTie(entries []catalog.CatalogEntry, pool cardPool) (catalog.CatalogEntry, error) {
	if len(entries) == 1 {
		return entries[0], nil
	}
	if inPool := pool.filter(entries); len(inPool) > 0 {
		entries = inPool
	}
	if e, ok := r.tie.Choose(entries); ok {
		return e, nil
	}
	return catalog.CatalogEntry{}, ErrAmbiguousMatch
}

// addResolved appends card, or merges it into the card already bound to the
// same OracleID at its first position.
func (r *Reconciler) addResolved(rec *decks.DeckRecord, card decks.ResolvedCard) {
	i := slices.IndexFunc(rec.Resolved, func(c decks.ResolvedCard) bool { return c.OracleID == card.OracleID })
	if i < 0 {
		rec.Resolved = append(rec.Resolved, card)
		return
	}

	existing := &rec.Resolved[i]
	source := card.SourceNames[0]

	j := slices.IndexFunc(rec.Merges, func(m decks.MergeAudit) bool { return m.OracleID == card.OracleID })
	if j < 0 {
		rec.Merges = append(rec.Merges, decks.MergeAudit{
			ID:            r.newID(),
			OracleID:      existing.OracleID,
			CanonicalName: existing.CanonicalName,
			SourceNames:   slices.Clone(existing.SourceNames),
			Quantities:    []int{existing.Quantity},
			Total:         existing.Quantity,
		})
		j = len(rec.Merges) - 1
	}
	audit := &rec.Merges[j]
	audit.SourceNames = append(audit.SourceNames, source)
	audit.Quantities = append(audit.Quantities, card.Quantity)
	audit.Total += card.Quantity

	existing.Quantity += card.Quantity
	existing.MatchConfidence = min(existing.MatchConfidence, card.MatchConfidence)
	if !slices.Contains(existing.SourceNames, source) {
		existing.SourceNames = append(existing.SourceNames, source)
	}
	if existing.Method == decks.MethodExact && card.Method != decks.MethodExact {
		existing.Method = card.Method
	}

	slog.Info("merged duplicate card",
		"card", existing.CanonicalName,
		"oracle_id", existing.OracleID,
		"source_names", audit.SourceNames,
		"quantities", audit.Quantities,
		"total", audit.Total,
	)
}

// cardPool is the cube hint's list in deterministic order.
type cardPool struct {
	names []string
	set   map[string]struct{}
}

func newPool(names []string) cardPool {
	p := cardPool{names: sortedUnique(names), set: map[string]struct{}{}}
	for _, n := range p.names {
		p.set[cardname.Normalize(n)] = struct{}{}
	}
	return p
}

func (p cardPool) filter(entries []catalog.CatalogEntry) []catalog.CatalogEntry {
	if len(p.set) == 0 {
		return nil
	}
	var out []catalog.CatalogEntry
	for _, e := range entries {
		if _, ok := p.set[cardname.Normalize(e.CanonicalName)]; ok {
			out = append(out, e)
		}
	}
	return out
}

func sortedUnique(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if cardname.Normalize(n) != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
