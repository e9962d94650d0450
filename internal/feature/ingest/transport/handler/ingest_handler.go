// Package handler はingestフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cube_wizard/internal/api"
	decks "cube_wizard/internal/feature/decks/domain/entity"
	decksdto "cube_wizard/internal/feature/decks/transport/http/dto"
	decksusecase "cube_wizard/internal/feature/decks/usecase"
	extraction "cube_wizard/internal/feature/extraction/usecase"
	"cube_wizard/internal/feature/ingest/adapters"
	"cube_wizard/internal/feature/ingest/domain/entity"
	"cube_wizard/internal/feature/ingest/transport/http/dto"
	"cube_wizard/internal/feature/ingest/usecase"
)

// MaxImageBytes は受け付ける画像の最大サイズです。
const MaxImageBytes = 25 << 20

// ImageProcessor はデッキ写真1枚を処理するユースケースインターフェースです。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type ImageProcessor interface {
	ProcessImage(ctx context.Context, in usecase.ImageInput) (decks.DeckRecord, error)
}

// CubeResolver はキューブ名をキューブIDに変換します。
type CubeResolver interface {
	Resolve(ref string) string
}

// IngestHandler はデッキ写真のアップロードを処理します。
type IngestHandler struct {
	uc    ImageProcessor
	cubes CubeResolver
}

// NewIngestHandler はIngestHandlerの新しいインスタンスを生成します。
func NewIngestHandler(uc ImageProcessor, cubes CubeResolver) *IngestHandler {
	return &IngestHandler{uc: uc, cubes: cubes}
}

// ProcessDeck は写真をアップロードしてデッキを取り込みます。
//
// エンドポイント: POST /v1/decks/process
// Content-Type: multipart/form-data
// フィールド: image（必須）, cube_hint, pilot_name, match_wins, match_losses, match_draws
// pilot_name を省略した場合はファイル名 "<Pilot> W-L[-D]" から読み取ります。
func (h *IngestHandler) ProcessDeck(c *gin.Context) {
	var form dto.ProcessDeckForm
	if err := c.ShouldBind(&form); err != nil {
		slog.Warn("取り込みリクエストのバリデーションに失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid form fields"})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "image file is required"})
		return
	}
	if file.Size > MaxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: "image is too large"})
		return
	}

	f, err := file.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		slog.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return
	}

	meta, err := h.metadata(form, file.Filename)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	rec, err := h.uc.ProcessImage(c.Request.Context(), usecase.ImageInput{
		Data:     data,
		Name:     file.Filename,
		Metadata: meta,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, decksdto.NewDeckResponse(rec))
}

func (h *IngestHandler) metadata(form dto.ProcessDeckForm, filename string) (entity.Metadata, error) {
	var meta entity.Metadata
	if name := strings.TrimSpace(form.PilotName); name != "" {
		wins, err := parseRecord("match_wins", form.MatchWins)
		if err != nil {
			return entity.Metadata{}, err
		}
		losses, err := parseRecord("match_losses", form.MatchLosses)
		if err != nil {
			return entity.Metadata{}, err
		}
		draws, err := parseRecord("match_draws", form.MatchDraws)
		if err != nil {
			return entity.Metadata{}, err
		}
		meta = entity.Metadata{
			Pilot: decks.Pilot{
				Name:        name,
				MatchWins:   wins,
				MatchLosses: losses,
				MatchDraws:  draws,
			},
			Source: "request",
		}
	} else {
		parsed, err := adapters.ParseFilename(filename)
		if err != nil {
			return entity.Metadata{}, errors.New("pilot_name is required when the file name is not \"<Pilot> W-L[-D]\"")
		}
		meta = parsed
	}

	meta.CubeRef = strings.TrimSpace(form.CubeHint)
	meta.CubeID = meta.CubeRef
	if h.cubes != nil {
		meta.CubeID = h.cubes.Resolve(meta.CubeRef)
	}
	return meta, nil
}

// parseRecord reads one match count. An empty field means zero.
func parseRecord(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return n, nil
}

func writeError(c *gin.Context, err error) {
	stage := usecase.StageOf(err)
	switch {
	case errors.Is(err, extraction.ErrImageTooDegraded):
		c.JSON(http.StatusUnprocessableEntity, dto.ProcessErrorResponse{Error: "image is unreadable or too small", Stage: string(stage)})
	case errors.Is(err, extraction.ErrExtractionFailed):
		c.JSON(http.StatusBadGateway, dto.ProcessErrorResponse{Error: "card extraction failed", Stage: string(stage)})
	case errors.Is(err, decksusecase.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, dto.ProcessErrorResponse{Error: "deck was modified concurrently", Stage: string(stage)})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, dto.ProcessErrorResponse{Error: "processing timed out", Stage: string(stage)})
	default:
		slog.Error("デッキ取り込みに失敗", "stage", stage, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ProcessErrorResponse{Error: "processing failed", Stage: string(stage)})
	}
}
