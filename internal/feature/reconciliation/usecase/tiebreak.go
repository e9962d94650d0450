package usecase

import (
	"fmt"

	catalog "cube_wizard/internal/feature/catalog/domain/entity"
)

// TieBreaker picks one entry among distinct cards that scored equally.
// It returns false when it cannot decide; the caller then reports the
// candidate as ambiguous.
type TieBreaker interface {
	Choose(entries []catalog.CatalogEntry) (catalog.CatalogEntry, bool)
}

// PopularityTieBreaker prefers the lower EDHREC rank, then the newer
// release. Each criterion is used only when every entry has the value and
// the best value is unique.
type PopularityTieBreaker struct{}

func (PopularityTieBreaker) Choose(entries []catalog.CatalogEntry) (catalog.CatalogEntry, bool) {
	if len(entries) == 1 {
		return entries[0], true
	}
	if len(entries) == 0 {
		return catalog.CatalogEntry{}, false
	}

	if best, ok := uniqueBest(entries, catalog.CatalogEntry.HasRank, func(a, b catalog.CatalogEntry) int {
		return b.EDHRecRank - a.EDHRecRank
	}); ok {
		return best, true
	}
	return uniqueBest(entries, catalog.CatalogEntry.HasReleaseDate, func(a, b catalog.CatalogEntry) int {
		return a.ReleasedAt.Compare(b.ReleasedAt)
	})
}

// uniqueBest returns the entry that compares strictly greater than all
// others, provided every entry has the criterion.
func uniqueBest(entries []catalog.CatalogEntry, has func(catalog.CatalogEntry) bool, cmp func(a, b catalog.CatalogEntry) int) (catalog.CatalogEntry, bool) {
	for _, e := range entries {
		if !has(e) {
			return catalog.CatalogEntry{}, false
		}
	}
	best := entries[0]
	tied := false
	for _, e := range entries[1:] {
		switch c := cmp(e, best); {
		case c > 0:
			best, tied = e, false
		case c == 0:
			tied = true
		}
	}
	if tied {
		return catalog.CatalogEntry{}, false
	}
	return best, true
}

// StrictTieBreaker never decides.
type StrictTieBreaker struct{}

func (StrictTieBreaker) Choose(entries []catalog.CatalogEntry) (catalog.CatalogEntry, bool) {
	if len(entries) == 1 {
		return entries[0], true
	}
	return catalog.CatalogEntry{}, false
}

// TieBreakerFor は設定名に対応する TieBreaker を返します。
func TieBreakerFor(name string) (TieBreaker, error) {
	switch name {
	case "", TieBreakPopularity:
		return PopularityTieBreaker{}, nil
	case TieBreakStrict:
		return StrictTieBreaker{}, nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q", name)
	}
}
