package usecase

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultFuzzyThreshold is the minimum similarity accepted for a fuzzy match.
	DefaultFuzzyThreshold = 0.80

	TieBreakPopularity = "popularity"
	TieBreakStrict     = "strict"
)

// Config はリコンシリエーションの設定です。
type Config struct {
	FuzzyThreshold float64
	TieBreak       string
}

// LoadConfig は環境変数から設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{FuzzyThreshold: DefaultFuzzyThreshold, TieBreak: TieBreakPopularity}

	if v := strings.TrimSpace(os.Getenv("FUZZY_THRESHOLD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			slog.Warn("invalid FUZZY_THRESHOLD, using default", "value", v, "default", DefaultFuzzyThreshold)
		} else {
			cfg.FuzzyThreshold = f
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("TIE_BREAK_POLICY"))); v != "" {
		cfg.TieBreak = v
	}
	return cfg
}
