// Package scryfall provides a client for the Scryfall card catalog API.
package scryfall

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultBaseURL     = "https://api.scryfall.com"
	defaultUserAgent   = "cube_wizard/1.0"
	defaultMinInterval = 100 * time.Millisecond
)

// Config holds configuration for the Scryfall API client.
type Config struct {
	BaseURL     string        // Base URL for the API (e.g., "https://api.scryfall.com")
	UserAgent   string        // Scryfall asks every client to identify itself
	MinInterval time.Duration // minimum gap between two requests
	Timeout     time.Duration // HTTP request timeout
}

// LoadConfig loads Scryfall configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:     os.Getenv("SCRYFALL_BASE_URL"),
		UserAgent:   os.Getenv("SCRYFALL_USER_AGENT"),
		MinInterval: defaultMinInterval,
		Timeout:     10 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if ms, err := strconv.Atoi(os.Getenv("SCRYFALL_MIN_INTERVAL_MS")); err == nil && ms >= 0 {
		cfg.MinInterval = time.Duration(ms) * time.Millisecond
	}
	return cfg
}
