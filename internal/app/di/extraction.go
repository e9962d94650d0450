package di

import (
	"context"
	"fmt"
	"strings"

	"cube_wizard/internal/feature/extraction/adapters/gemini"
	"cube_wizard/internal/feature/extraction/adapters/vision"
	extractionusecase "cube_wizard/internal/feature/extraction/usecase"
)

const (
	BackendGemini = "gemini"
	BackendVision = "vision"
)

// NewModelBackend は VISION_BACKEND の値に応じた読み取りバックエンドを返します。
// 戻り値の close はバックエンドが保持するクライアントを解放します。
func NewModelBackend(ctx context.Context, name string) (extractionusecase.ModelBackend, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendGemini:
		b, err := gemini.NewGeminiExtractor(ctx)
		if err != nil {
			return nil, nil, err
		}
		return b, func() error { return nil }, nil
	case BackendVision:
		b, err := vision.NewVisionOCRExtractor(ctx)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vision backend %q", name)
	}
}

// NewExtractor wraps backend with the validation and retry rules of the extractor.
func NewExtractor(backend extractionusecase.ModelBackend) *extractionusecase.Extractor {
	return extractionusecase.NewExtractor(backend, extractionusecase.LoadConfig(), extractionusecase.DefaultRetryPolicy())
}
