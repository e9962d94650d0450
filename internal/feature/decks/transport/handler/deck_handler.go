// Package handler はdecksフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"cube_wizard/internal/api"
	catalog "cube_wizard/internal/feature/catalog/usecase"
	"cube_wizard/internal/feature/decks/domain/entity"
	"cube_wizard/internal/feature/decks/transport/http/dto"
	"cube_wizard/internal/feature/decks/usecase"
)

// DecksUsecase は保存済みデッキ操作のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type DecksUsecase interface {
	Get(ctx context.Context, deckID string) (*entity.DeckRecord, error)
	ListByCube(ctx context.Context, cubeID string) ([]entity.DeckRecord, error)
	Delete(ctx context.Context, deckID string) error
	Resolve(ctx context.Context, deckID string, choice entity.ManualResolution) (*entity.DeckRecord, error)
}

// DecksHandler はデッキ参照・更新のHTTPリクエストを処理します。
type DecksHandler struct {
	uc DecksUsecase
}

// NewDecksHandler はDecksHandlerの新しいインスタンスを生成します。
func NewDecksHandler(uc DecksUsecase) *DecksHandler {
	return &DecksHandler{uc: uc}
}

// GetDeck はデッキ1件を返します。
//
// エンドポイント: GET /v1/decks/:id
func (h *DecksHandler) GetDeck(c *gin.Context) {
	rec, err := h.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeckResponse(*rec))
}

// ListCubeDecks はキューブに属するデッキを新しい順に返します。
//
// エンドポイント: GET /v1/cubes/:cube_id/decks
func (h *DecksHandler) ListCubeDecks(c *gin.Context) {
	recs, err := h.uc.ListByCube(c.Request.Context(), c.Param("cube_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.DeckResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, dto.NewDeckResponse(r))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteDeck はデッキを削除します。
//
// エンドポイント: DELETE /v1/decks/:id
func (h *DecksHandler) DeleteDeck(c *gin.Context) {
	if err := h.uc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResolveCard は未解決カードを指定したカード名またはオラクルIDで解決します。
//
// エンドポイント: POST /v1/decks/:id/resolve
// Content-Type: application/json
func (h *DecksHandler) ResolveCard(c *gin.Context) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("手動解決リクエストのバリデーションに失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "index and a card name or oracle_id are required"})
		return
	}
	choice := req.ToEntity()
	if choice.Name == "" && choice.OracleID == "" {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "index and a card name or oracle_id are required"})
		return
	}

	rec, err := h.uc.Resolve(c.Request.Context(), c.Param("id"), choice)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDeckResponse(*rec))
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrDeckNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "deck not found"})
	case errors.Is(err, usecase.ErrInvalidResolution):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrCardNotFound):
		c.JSON(http.StatusUnprocessableEntity, api.ErrorResponse{Error: "card not found in catalog"})
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		c.JSON(http.StatusServiceUnavailable, api.ErrorResponse{Error: "card catalog unavailable"})
	case errors.Is(err, usecase.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: "deck was modified concurrently"})
	default:
		slog.Error("デッキ操作に失敗", "error", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
	}
}
