package dto

// ProcessDeckForm は POST /v1/decks/process のフォーム項目です。
type ProcessDeckForm struct {
	CubeHint    string `form:"cube_hint"`
	PilotName   string `form:"pilot_name"`
	MatchWins   string `form:"match_wins"`
	MatchLosses string `form:"match_losses"`
	MatchDraws  string `form:"match_draws"`
}

// ProcessErrorResponse は取り込み失敗時のレスポンスです。
type ProcessErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"` // 失敗したパイプライン段階
}
