// Package cubecobra fetches cube card lists from CubeCobra.
package cubecobra

import (
	"os"
	"time"
)

const defaultBaseURL = "https://cubecobra.com"

// Config holds configuration for the CubeCobra client.
type Config struct {
	BaseURL string        // Base URL (e.g., "https://cubecobra.com")
	Timeout time.Duration // HTTP request timeout
}

// LoadConfig loads CubeCobra configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		BaseURL: os.Getenv("CUBECOBRA_BASE_URL"),
		Timeout: 15 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return cfg
}
