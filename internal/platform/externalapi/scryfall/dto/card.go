// Package dto defines data transfer objects for the Scryfall API responses.
package dto

// Card represents the subset of a Scryfall card object used by the catalog.
type Card struct {
	Object        string   `json:"object"`
	ID            string   `json:"id"`
	OracleID      string   `json:"oracle_id"`
	Name          string   `json:"name"`
	Set           string   `json:"set"`
	ManaCost      string   `json:"mana_cost"`
	CMC           float64  `json:"cmc"`
	TypeLine      string   `json:"type_line"`
	ColorIdentity []string `json:"color_identity"`
	Rarity        string   `json:"rarity"`
	EDHRecRank    int      `json:"edhrec_rank"`
	ReleasedAt    string   `json:"released_at"`
	CardFaces     []struct {
		Name     string `json:"name"`
		ManaCost string `json:"mana_cost"`
		TypeLine string `json:"type_line"`
		OracleID string `json:"oracle_id"`
	} `json:"card_faces"`
}

// CardList represents a Scryfall list object (search results).
type CardList struct {
	Object     string `json:"object"`
	TotalCards int    `json:"total_cards"`
	Data       []Card `json:"data"`
}

// Catalog represents a Scryfall catalog object (autocomplete results).
type Catalog struct {
	Object      string   `json:"object"`
	TotalValues int      `json:"total_values"`
	Data        []string `json:"data"`
}

// Error represents a Scryfall error object.
type Error struct {
	Object  string `json:"object"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Type    string `json:"type,omitempty"`
	Details string `json:"details"`
}
