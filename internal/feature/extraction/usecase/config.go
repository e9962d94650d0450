package usecase

import (
	"os"
	"strconv"
	"time"

	"cube_wizard/internal/platform/imaging"
)

// MaxPoolInPrompt caps the number of cube card names sent to the model.
const MaxPoolInPrompt = 360

// Config holds the extractor settings.
type Config struct {
	MaxDimension    int           // long side limit before the model call
	MinShortSide    int           // quality floor
	JPEGQuality     int           // re-encode quality
	MaxConcurrency  int           // concurrent model calls across all workers
	Timeout         time.Duration // per-attempt model call timeout
	MaxPoolInPrompt int

	// MultiPass enables cube-seeded follow-up reads when the first read
	// comes up short of ExpectedDeckSize.
	MultiPass        bool
	ExpectedDeckSize int
	// ValidationPass enables the last pass listing the missing cube cards.
	ValidationPass bool
}

// DefaultExpectedDeckSize は1デッキの想定枚数です。
const DefaultExpectedDeckSize = 40

// LoadConfig loads extractor configuration from environment variables.
func LoadConfig() Config {
	return Config{
		MaxDimension:    envInt("IMAGE_MAX_DIMENSION", imaging.DefaultMaxDimension),
		MinShortSide:    envInt("IMAGE_MIN_SHORT_SIDE", imaging.DefaultMinShortSide),
		JPEGQuality:     envInt("IMAGE_JPEG_QUALITY", imaging.DefaultJPEGQuality),
		MaxConcurrency:  envInt("VISION_MAX_CONCURRENCY", 2),
		Timeout:         time.Duration(envInt("VISION_TIMEOUT_SECONDS", 120)) * time.Second,
		MaxPoolInPrompt: MaxPoolInPrompt,

		MultiPass:        envBool("EXTRACTION_MULTI_PASS", true),
		ExpectedDeckSize: envInt("EXPECTED_DECK_SIZE", DefaultExpectedDeckSize),
		ValidationPass:   envBool("EXTRACTION_VALIDATION_PASS", true),
	}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}
