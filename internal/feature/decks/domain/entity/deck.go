// Package entity はdecksフィーチャーのドメインモデルを定義します。
package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	catalog "cube_wizard/internal/feature/catalog/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
)

// ResolutionMethod は候補がカタログエントリに解決された方法です。
type ResolutionMethod string

const (
	MethodExact  ResolutionMethod = "exact"
	MethodFuzzy  ResolutionMethod = "fuzzy"
	MethodManual ResolutionMethod = "manual"
)

// UnresolvedReason は候補が解決されなかった理由です。
type UnresolvedReason string

const (
	ReasonNotFound           UnresolvedReason = "not_found"
	ReasonBelowThreshold     UnresolvedReason = "below_threshold"
	ReasonAmbiguous          UnresolvedReason = "ambiguous"
	ReasonCatalogUnavailable UnresolvedReason = "catalog_unavailable"
)

// Pilot はデッキを使用したプレイヤーと戦績です。
type Pilot struct {
	Name        string `json:"name"`
	MatchWins   int    `json:"match_wins"`
	MatchLosses int    `json:"match_losses"`
	MatchDraws  int    `json:"match_draws"`
}

// WinRate returns wins / (wins + losses); draws are ignored. Zero when no
// decided matches were played.
func (p Pilot) WinRate() float64 {
	decided := p.MatchWins + p.MatchLosses
	if decided == 0 {
		return 0
	}
	return float64(p.MatchWins) / float64(decided)
}

// ResolvedCard is a deck entry bound to one catalog card.
type ResolvedCard struct {
	OracleID        string           `json:"oracle_id"`
	CanonicalName   string           `json:"canonical_name"`
	Quantity        int              `json:"quantity"`
	MatchConfidence float64          `json:"match_confidence"`
	Method          ResolutionMethod `json:"method"`
	SourceNames     []string         `json:"source_names"`

	SetCode       string   `json:"set_code,omitempty"`
	ManaCost      string   `json:"mana_cost,omitempty"`
	CMC           float64  `json:"cmc"`
	TypeLine      string   `json:"type_line,omitempty"`
	ColorIdentity []string `json:"color_identity,omitempty"`
	Rarity        string   `json:"rarity,omitempty"`
}

// NewResolvedCard copies the catalog metadata of e into a resolved card.
func NewResolvedCard(e catalog.CatalogEntry, quantity int, confidence float64, method ResolutionMethod, sourceName string) ResolvedCard {
	return ResolvedCard{
		OracleID:        e.OracleID,
		CanonicalName:   e.CanonicalName,
		Quantity:        quantity,
		MatchConfidence: confidence,
		Method:          method,
		SourceNames:     []string{sourceName},
		SetCode:         e.SetCode,
		ManaCost:        e.ManaCost,
		CMC:             e.CMC,
		TypeLine:        e.TypeLine,
		ColorIdentity:   e.ColorIdentity,
		Rarity:          e.Rarity,
	}
}

// UnresolvedCandidate keeps a raw candidate that could not be bound, with
// the closest guess for later review.
type UnresolvedCandidate struct {
	Candidate    extraction.RawCardCandidate `json:"candidate"`
	Reason       UnresolvedReason            `json:"reason"`
	BestGuess    string                      `json:"best_guess,omitempty"`
	BestScore    float64                     `json:"best_score,omitempty"`
	Alternatives []string                    `json:"alternatives,omitempty"`
}

// MergeAudit records candidates that collapsed into one resolved card.
type MergeAudit struct {
	ID            string   `json:"id"`
	OracleID      string   `json:"oracle_id"`
	CanonicalName string   `json:"canonical_name"`
	SourceNames   []string `json:"source_names"`
	Quantities    []int    `json:"quantities"`
	Total         int      `json:"total"`
}

// DeckRecord is the database-ready result of one deck photo.
type DeckRecord struct {
	DeckID      string                       `json:"deck_id"`
	CubeID      string                       `json:"cube_id,omitempty"`
	Pilot       Pilot                        `json:"pilot"`
	Resolved    []ResolvedCard               `json:"resolved"`
	Unresolved  []UnresolvedCandidate        `json:"unresolved"`
	Merges      []MergeAudit                 `json:"merges,omitempty"`
	ProcessedAt time.Time                    `json:"processed_at"`
	SourceImage string                       `json:"source_image,omitempty"`
	ImageSHA256 string                       `json:"image_sha256"`
	Submission  string                       `json:"submission,omitempty"`
	Extraction  extraction.ConfidenceSummary `json:"extraction"`
}

// ResolvedQuantity returns the number of cards bound to catalog entries.
func (d DeckRecord) ResolvedQuantity() int {
	total := 0
	for _, c := range d.Resolved {
		total += c.Quantity
	}
	return total
}

// UnresolvedQuantity returns the number of cards left unresolved.
func (d DeckRecord) UnresolvedQuantity() int {
	total := 0
	for _, u := range d.Unresolved {
		total += u.Candidate.Quantity
	}
	return total
}

// TotalQuantity is ResolvedQuantity plus UnresolvedQuantity. It always
// equals the sum of the extracted candidate quantities.
func (d DeckRecord) TotalQuantity() int {
	return d.ResolvedQuantity() + d.UnresolvedQuantity()
}

// ManualResolution binds one unresolved entry to a catalog card chosen by
// oracle id or by name; OracleID wins when both are set. Candidate, when set,
// is the candidate name the caller saw at Index, so the entry is still found
// after earlier resolutions shifted the list.
type ManualResolution struct {
	Index     int
	Candidate string
	OracleID  string
	Name      string
}

// LocateUnresolved returns the position of the entry addressed by index and,
// if candidate is set, carrying that candidate name. It reports false when no
// such entry exists.
func (d DeckRecord) LocateUnresolved(index int, candidate string) (int, bool) {
	if candidate == "" {
		return index, index >= 0 && index < len(d.Unresolved)
	}
	if index >= 0 && index < len(d.Unresolved) && d.Unresolved[index].Candidate.Name == candidate {
		return index, true
	}
	for i, u := range d.Unresolved {
		if u.Candidate.Name == candidate {
			return i, true
		}
	}
	return 0, false
}

// deckIDLength is the number of hex characters of the digest used as id.
const deckIDLength = 32

// DeckIDFromImage derives the deck id from the image bytes. The same photo
// always yields the same id, so reprocessing replaces the earlier record.
// It returns the id and the full hex digest.
func DeckIDFromImage(image []byte) (string, string) {
	sum := sha256.Sum256(image)
	digest := hex.EncodeToString(sum[:])
	return digest[:deckIDLength], digest
}
