// Package entity はextractionフィーチャーのドメインモデルを定義します。
package entity

// CubeHint identifies the cube a deck was drafted from. CardPool, when
// known, narrows both the vision prompt and fuzzy matching.
type CubeHint struct {
	ID       string   `json:"id,omitempty"`
	CardPool []string `json:"card_pool,omitempty"`
}

// RawCardCandidate は写真から読み取られた1行分のカード候補です。
// 永続化されるのは未解決リストの一部としてのみです。
type RawCardCandidate struct {
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	Confidence   float64 `json:"confidence"`              // 0.0 ~ 1.0
	SourceRegion string  `json:"source_region,omitempty"` // free-form position hint from the model
}

// RejectedEntry is a model output entry dropped by schema validation.
type RejectedEntry struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ConfidenceLevel は抽出全体の信頼度区分です。
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceSummary describes how much the extraction can be trusted.
type ConfidenceSummary struct {
	Level     ConfidenceLevel `json:"level"`
	Mean      float64         `json:"mean"`
	Min       float64         `json:"min"`
	Backend   string          `json:"backend"`
	Attempts  int             `json:"attempts"`
	Resized   bool            `json:"resized"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Notes     string          `json:"notes,omitempty"`
	Rejected  []RejectedEntry `json:"rejected,omitempty"`
	PoolGiven int             `json:"pool_given,omitempty"` // pool names sent in the prompt
	Passes    int             `json:"passes,omitempty"`     // model reads of the image, 1 unless multi-pass ran
}

// Extraction is the validated result of one image.
type Extraction struct {
	Candidates []RawCardCandidate `json:"candidates"`
	Summary    ConfidenceSummary  `json:"summary"`
}

// TotalQuantity returns the sum of candidate quantities.
func (e Extraction) TotalQuantity() int {
	total := 0
	for _, c := range e.Candidates {
		total += c.Quantity
	}
	return total
}

// ModelRequest is what a vision backend receives.
//
// Pass is 1 for the first read of an image. Follow-up passes carry the names
// already found, and the last one also the cube cards still unaccounted for.
type ModelRequest struct {
	Image    []byte
	MIMEType string
	CardPool []string
	Pass     int
	Found    []string
	Missing  []string
}

// ModelEntry is one unvalidated entry as returned by a vision backend.
// Quantity is kept as float64 so that non-integral output can be rejected.
type ModelEntry struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Confidence float64 `json:"confidence"`
	Region     string  `json:"region,omitempty"`
}

// ModelResponse is the unvalidated output of a vision backend.
type ModelResponse struct {
	Cards []ModelEntry `json:"cards"`
	Notes string       `json:"notes,omitempty"`
}
