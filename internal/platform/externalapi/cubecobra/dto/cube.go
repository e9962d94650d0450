// Package dto defines data transfer objects for the CubeCobra cubeJSON endpoint.
package dto

// CubeCard is one card of a cube board. Older exports only carry a top-level name.
type CubeCard struct {
	Name    string `json:"name"`
	Details *struct {
		Name string `json:"name"`
	} `json:"details,omitempty"`
}

// CubeResponse represents the subset of /cube/api/cubeJSON/{id} used here.
type CubeResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Cards struct {
		Mainboard []CubeCard `json:"mainboard"`
	} `json:"cards"`
}
