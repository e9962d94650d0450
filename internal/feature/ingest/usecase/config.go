package usecase

import (
	"os"
	"strconv"
	"strings"
)

const (
	DefaultWorkers        = 2
	DefaultSubmissionRoot = "masv_data"
	DefaultImportedDir    = "masv_imported"
)

// Config はバッチインポートの設定です。
type Config struct {
	Workers        int
	SubmissionRoot string
	ImportedDir    string
}

// LoadConfig は環境変数から設定を読み込みます。
func LoadConfig() Config {
	cfg := Config{
		Workers:        DefaultWorkers,
		SubmissionRoot: DefaultSubmissionRoot,
		ImportedDir:    DefaultImportedDir,
	}
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv("INGEST_WORKERS"))); err == nil && v > 0 {
		cfg.Workers = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBMISSION_ROOT")); v != "" {
		cfg.SubmissionRoot = v
	}
	if v := strings.TrimSpace(os.Getenv("IMPORTED_DIR")); v != "" {
		cfg.ImportedDir = v
	}
	return cfg
}
