package entity

import (
	"time"

	"cube_wizard/internal/shared/cardname"
)

// CatalogEntry はカードカタログ（Scryfall）から取得した1枚のカードの正規メタデータです。
// 一度取得したエントリは不変として扱い、明示的な無効化でのみ再取得されます。
type CatalogEntry struct {
	OracleID      string    `json:"oracle_id"`
	ScryfallID    string    `json:"scryfall_id"`
	CanonicalName string    `json:"canonical_name"`
	FaceNames     []string  `json:"face_names,omitempty"`
	SetCode       string    `json:"set_code"`
	ManaCost      string    `json:"mana_cost"`
	CMC           float64   `json:"cmc"`
	TypeLine      string    `json:"type_line"`
	ColorIdentity []string  `json:"color_identity"`
	Rarity        string    `json:"rarity"`
	EDHRecRank    int       `json:"edhrec_rank,omitempty"` // 0 means unranked
	ReleasedAt    time.Time `json:"released_at,omitempty"`
}

// HasRank reports whether the entry carries an EDHREC popularity rank.
func (e CatalogEntry) HasRank() bool { return e.EDHRecRank > 0 }

// HasReleaseDate reports whether the entry carries a release date.
func (e CatalogEntry) HasReleaseDate() bool { return !e.ReleasedAt.IsZero() }

// MatchesName reports whether name is the canonical name or one of the face
// names of the entry after normalization.
func (e CatalogEntry) MatchesName(name string) bool {
	if cardname.Equal(e.CanonicalName, name) {
		return true
	}
	for _, face := range e.FaceNames {
		if cardname.Equal(face, name) {
			return true
		}
	}
	return false
}
