package adapters

import (
	"time"

	"gorm.io/datatypes"

	"cube_wizard/internal/feature/decks/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
)

// DeckModel is one row per deck photo.
type DeckModel struct {
	DeckID string `gorm:"primaryKey;size:64"`
	CubeID string `gorm:"size:128;index"`

	PilotName   string  `gorm:"size:255;not null;default:''"`
	MatchWins   int     `gorm:"not null;default:0"`
	MatchLosses int     `gorm:"not null;default:0"`
	MatchDraws  int     `gorm:"not null;default:0"`
	WinRate     float64 `gorm:"not null;default:0"`

	ResolvedCount   int `gorm:"not null;default:0"`
	UnresolvedCount int `gorm:"not null;default:0"`

	SourceImage string `gorm:"size:1024"`
	ImageSHA256 string `gorm:"size:64;index"`
	Submission  string `gorm:"size:512"`

	Extraction  datatypes.JSONType[extraction.ConfidenceSummary]
	ProcessedAt time.Time `gorm:"not null;index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeckModel) TableName() string {
	return "decks"
}

// DeckCardModel is one resolved card of a deck.
type DeckCardModel struct {
	ID       uint   `gorm:"primaryKey"`
	DeckID   string `gorm:"size:64;not null;uniqueIndex:deck_card_pos,priority:1"`
	Position int    `gorm:"not null;uniqueIndex:deck_card_pos,priority:2"`

	OracleID        string  `gorm:"size:64;not null;index"`
	CanonicalName   string  `gorm:"size:255;not null"`
	Quantity        int     `gorm:"not null"`
	MatchConfidence float64 `gorm:"not null;default:0"`
	Method          string  `gorm:"size:16;not null"`
	SourceNames     datatypes.JSONSlice[string]

	SetCode       string `gorm:"size:16"`
	ManaCost      string `gorm:"size:128"`
	CMC           float64
	TypeLine      string `gorm:"size:255"`
	ColorIdentity datatypes.JSONSlice[string]
	Rarity        string `gorm:"size:32"`
}

func (DeckCardModel) TableName() string {
	return "deck_cards"
}

// UnresolvedCardModel is one candidate that could not be bound.
type UnresolvedCardModel struct {
	ID       uint   `gorm:"primaryKey"`
	DeckID   string `gorm:"size:64;not null;uniqueIndex:deck_unresolved_pos,priority:1"`
	Position int    `gorm:"not null;uniqueIndex:deck_unresolved_pos,priority:2"`

	Name         string  `gorm:"size:255;not null"`
	Quantity     int     `gorm:"not null"`
	Confidence   float64 `gorm:"not null;default:0"`
	SourceRegion string  `gorm:"size:255"`
	Reason       string  `gorm:"size:32;not null"`
	BestGuess    string  `gorm:"size:255"`
	BestScore    float64
	Alternatives datatypes.JSONSlice[string]
}

func (UnresolvedCardModel) TableName() string {
	return "deck_unresolved_cards"
}

// MergeAuditModel records names that were folded into one resolved card.
type MergeAuditModel struct {
	ID            string `gorm:"primaryKey;size:36"`
	DeckID        string `gorm:"size:64;not null;index"`
	Position      int    `gorm:"not null;default:0"`
	OracleID      string `gorm:"size:64;not null"`
	CanonicalName string `gorm:"size:255;not null"`
	SourceNames   datatypes.JSONSlice[string]
	Quantities    datatypes.JSONSlice[int]
	Total         int `gorm:"not null"`
}

func (MergeAuditModel) TableName() string {
	return "deck_merge_audits"
}

// Models returns every model of this package for AutoMigrate.
func Models() []any {
	return []any{&DeckModel{}, &DeckCardModel{}, &UnresolvedCardModel{}, &MergeAuditModel{}}
}

func toDeckModel(r entity.DeckRecord) DeckModel {
	return DeckModel{
		DeckID:          r.DeckID,
		CubeID:          r.CubeID,
		PilotName:       r.Pilot.Name,
		MatchWins:       r.Pilot.MatchWins,
		MatchLosses:     r.Pilot.MatchLosses,
		MatchDraws:      r.Pilot.MatchDraws,
		WinRate:         r.Pilot.WinRate(),
		ResolvedCount:   r.ResolvedQuantity(),
		UnresolvedCount: r.UnresolvedQuantity(),
		SourceImage:     r.SourceImage,
		ImageSHA256:     r.ImageSHA256,
		Submission:      r.Submission,
		Extraction:      datatypes.NewJSONType(r.Extraction),
		ProcessedAt:     r.ProcessedAt.UTC(),
	}
}

func toCardModels(deckID string, cards []entity.ResolvedCard) []DeckCardModel {
	out := make([]DeckCardModel, 0, len(cards))
	for i, c := range cards {
		out = append(out, DeckCardModel{
			DeckID:          deckID,
			Position:        i,
			OracleID:        c.OracleID,
			CanonicalName:   c.CanonicalName,
			Quantity:        c.Quantity,
			MatchConfidence: c.MatchConfidence,
			Method:          string(c.Method),
			SourceNames:     datatypes.NewJSONSlice(c.SourceNames),
			SetCode:         c.SetCode,
			ManaCost:        c.ManaCost,
			CMC:             c.CMC,
			TypeLine:        c.TypeLine,
			ColorIdentity:   datatypes.NewJSONSlice(c.ColorIdentity),
			Rarity:          c.Rarity,
		})
	}
	return out
}

func toUnresolvedModels(deckID string, items []entity.UnresolvedCandidate) []UnresolvedCardModel {
	out := make([]UnresolvedCardModel, 0, len(items))
	for i, u := range items {
		out = append(out, UnresolvedCardModel{
			DeckID:       deckID,
			Position:     i,
			Name:         u.Candidate.Name,
			Quantity:     u.Candidate.Quantity,
			Confidence:   u.Candidate.Confidence,
			SourceRegion: u.Candidate.SourceRegion,
			Reason:       string(u.Reason),
			BestGuess:    u.BestGuess,
			BestScore:    u.BestScore,
			Alternatives: datatypes.NewJSONSlice(u.Alternatives),
		})
	}
	return out
}

func toMergeModels(deckID string, merges []entity.MergeAudit, newID func() string) []MergeAuditModel {
	out := make([]MergeAuditModel, 0, len(merges))
	for i, m := range merges {
		id := m.ID
		if id == "" {
			id = newID()
		}
		out = append(out, MergeAuditModel{
			ID:            id,
			DeckID:        deckID,
			Position:      i,
			OracleID:      m.OracleID,
			CanonicalName: m.CanonicalName,
			SourceNames:   datatypes.NewJSONSlice(m.SourceNames),
			Quantities:    datatypes.NewJSONSlice(m.Quantities),
			Total:         m.Total,
		})
	}
	return out
}

func toEntity(d DeckModel, cards []DeckCardModel, unresolved []UnresolvedCardModel, merges []MergeAuditModel) entity.DeckRecord {
	rec := entity.DeckRecord{
		DeckID: d.DeckID,
		CubeID: d.CubeID,
		Pilot: entity.Pilot{
			Name:        d.PilotName,
			MatchWins:   d.MatchWins,
			MatchLosses: d.MatchLosses,
			MatchDraws:  d.MatchDraws,
		},
		Resolved:    make([]entity.ResolvedCard, 0, len(cards)),
		Unresolved:  make([]entity.UnresolvedCandidate, 0, len(unresolved)),
		ProcessedAt: d.ProcessedAt.UTC(),
		SourceImage: d.SourceImage,
		ImageSHA256: d.ImageSHA256,
		Submission:  d.Submission,
		Extraction:  d.Extraction.Data(),
	}
	for _, c := range cards {
		rec.Resolved = append(rec.Resolved, entity.ResolvedCard{
			OracleID:        c.OracleID,
			CanonicalName:   c.CanonicalName,
			Quantity:        c.Quantity,
			MatchConfidence: c.MatchConfidence,
			Method:          entity.ResolutionMethod(c.Method),
			SourceNames:     []string(c.SourceNames),
			SetCode:         c.SetCode,
			ManaCost:        c.ManaCost,
			CMC:             c.CMC,
			TypeLine:        c.TypeLine,
			ColorIdentity:   []string(c.ColorIdentity),
			Rarity:          c.Rarity,
		})
	}
	for _, u := range unresolved {
		rec.Unresolved = append(rec.Unresolved, entity.UnresolvedCandidate{
			Candidate: extraction.RawCardCandidate{
				Name:         u.Name,
				Quantity:     u.Quantity,
				Confidence:   u.Confidence,
				SourceRegion: u.SourceRegion,
			},
			Reason:       entity.UnresolvedReason(u.Reason),
			BestGuess:    u.BestGuess,
			BestScore:    u.BestScore,
			Alternatives: []string(u.Alternatives),
		})
	}
	for _, m := range merges {
		rec.Merges = append(rec.Merges, entity.MergeAudit{
			ID:            m.ID,
			OracleID:      m.OracleID,
			CanonicalName: m.CanonicalName,
			SourceNames:   []string(m.SourceNames),
			Quantities:    []int(m.Quantities),
			Total:         m.Total,
		})
	}
	return rec
}
