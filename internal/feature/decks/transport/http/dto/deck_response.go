package dto

import (
	"strings"
	"time"

	"cube_wizard/internal/feature/decks/domain/entity"
	extraction "cube_wizard/internal/feature/extraction/domain/entity"
)

// PilotResponse はパイロット情報のレスポンスDTOです。
type PilotResponse struct {
	Name        string  `json:"name"`
	MatchWins   int     `json:"match_wins"`
	MatchLosses int     `json:"match_losses"`
	MatchDraws  int     `json:"match_draws"`
	WinRate     float64 `json:"win_rate"` // 引き分けを除いた勝率
}

// CountsResponse はデッキ内の枚数集計です。
type CountsResponse struct {
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Total      int `json:"total"`
}

// DeckResponse はデッキ1件のレスポンスDTOです。
type DeckResponse struct {
	DeckID      string                       `json:"deck_id"`
	CubeID      string                       `json:"cube_id,omitempty"`
	Pilot       PilotResponse                `json:"pilot"`
	Counts      CountsResponse               `json:"counts"`
	Resolved    []entity.ResolvedCard        `json:"resolved"`
	Unresolved  []entity.UnresolvedCandidate `json:"unresolved"`
	Merges      []entity.MergeAudit          `json:"merges"`
	ProcessedAt string                       `json:"processed_at"`
	SourceImage string                       `json:"source_image,omitempty"`
	ImageSHA256 string                       `json:"image_sha256"`
	Extraction  extraction.ConfidenceSummary `json:"extraction"`
}

// ResolveRequest は未解決カードの手動解決リクエストです。
// name と oracle_id のどちらかが必要で、両方あれば oracle_id を優先します。
// candidate には一覧で見た候補名を渡すと、先に別のエントリが解決されて
// index がずれていても同じエントリを解決します。
type ResolveRequest struct {
	Index     *int   `json:"index" binding:"required,min=0"`
	Candidate string `json:"candidate"`
	Name      string `json:"name"`
	OracleID  string `json:"oracle_id" binding:"omitempty,uuid"`
}

// ToEntity はリクエストを ManualResolution に変換します。
func (r ResolveRequest) ToEntity() entity.ManualResolution {
	return entity.ManualResolution{
		Index:     *r.Index,
		Candidate: strings.TrimSpace(r.Candidate),
		Name:      strings.TrimSpace(r.Name),
		OracleID:  strings.TrimSpace(r.OracleID),
	}
}

// NewDeckResponse は DeckRecord をレスポンスDTOに変換します。
func NewDeckResponse(r entity.DeckRecord) DeckResponse {
	out := DeckResponse{
		DeckID: r.DeckID,
		CubeID: r.CubeID,
		Pilot: PilotResponse{
			Name:        r.Pilot.Name,
			MatchWins:   r.Pilot.MatchWins,
			MatchLosses: r.Pilot.MatchLosses,
			MatchDraws:  r.Pilot.MatchDraws,
			WinRate:     r.Pilot.WinRate(),
		},
		Counts: CountsResponse{
			Resolved:   r.ResolvedQuantity(),
			Unresolved: r.UnresolvedQuantity(),
			Total:      r.TotalQuantity(),
		},
		Resolved:    r.Resolved,
		Unresolved:  r.Unresolved,
		Merges:      r.Merges,
		ProcessedAt: r.ProcessedAt.UTC().Format(time.RFC3339),
		SourceImage: r.SourceImage,
		ImageSHA256: r.ImageSHA256,
		Extraction:  r.Extraction,
	}
	if out.Resolved == nil {
		out.Resolved = []entity.ResolvedCard{}
	}
	if out.Unresolved == nil {
		out.Unresolved = []entity.UnresolvedCandidate{}
	}
	if out.Merges == nil {
		out.Merges = []entity.MergeAudit{}
	}
	return out
}
