package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	decks "cube_wizard/internal/feature/decks/domain/entity"
	deckshandler "cube_wizard/internal/feature/decks/transport/handler"
	decksusecase "cube_wizard/internal/feature/decks/usecase"
	ingesthandler "cube_wizard/internal/feature/ingest/transport/handler"
	ingestusecase "cube_wizard/internal/feature/ingest/usecase"
	healthhandler "cube_wizard/internal/platform/http/handler"
	jwtmw "cube_wizard/internal/platform/jwt"
)

type stubDecks struct {
	deleted []string
}

func (s *stubDecks) Get(ctx context.Context, deckID string) (*decks.DeckRecord, error) {
	if deckID != "deck-1" {
		return nil, decksusecase.ErrDeckNotFound
	}
	return &decks.DeckRecord{DeckID: deckID, CubeID: "vintage", ProcessedAt: time.Now()}, nil
}

func (s *stubDecks) ListByCube(ctx context.Context, cubeID string) ([]decks.DeckRecord, error) {
	return nil, nil
}

func (s *stubDecks) Delete(ctx context.Context, deckID string) error {
	s.deleted = append(s.deleted, deckID)
	return nil
}

func (s *stubDecks) Resolve(ctx context.Context, deckID string, _ decks.ManualResolution) (*decks.DeckRecord, error) {
	return s.Get(ctx, deckID)
}

type stubProcessor struct{}

func (stubProcessor) ProcessImage(ctx context.Context, in ingestusecase.ImageInput) (decks.DeckRecord, error) {
	return decks.DeckRecord{}, nil
}

type identityCubes struct{}

func (identityCubes) Resolve(ref string) string { return ref }

func setup(t *testing.T) (*gin.Engine, *stubDecks) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	uc := &stubDecks{}
	r := NewRouter(
		healthhandler.NewHealthHandler(nil),
		deckshandler.NewDecksHandler(uc),
		ingesthandler.NewIngestHandler(stubProcessor{}, identityCubes{}),
	)
	return r, uc
}

func TestRouter_PublicRoutes(t *testing.T) {
	t.Setenv(jwtmw.EnvKeyJWTSecret, "router-secret")
	r, _ := setup(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"healthz head", http.MethodHead, "/healthz", http.StatusOK},
		{"get deck", http.MethodGet, "/v1/decks/deck-1", http.StatusOK},
		{"get missing deck", http.MethodGet, "/v1/decks/nope", http.StatusNotFound},
		{"list cube", http.MethodGet, "/v1/cubes/vintage/decks", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

// TestRouter_WriteRoutesRequireToken は書き込み系ルートがJWTなしで401を返すことを検証します。
func TestRouter_WriteRoutesRequireToken(t *testing.T) {
	t.Setenv(jwtmw.EnvKeyJWTSecret, "router-secret")
	r, uc := setup(t)

	for _, rt := range []struct{ method, path string }{
		{http.MethodPost, "/v1/decks/process"},
		{http.MethodPost, "/v1/decks/deck-1/resolve"},
		{http.MethodDelete, "/v1/decks/deck-1"},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
	assert.Empty(t, uc.deleted)
}

func TestRouter_DeleteWithToken(t *testing.T) {
	t.Setenv(jwtmw.EnvKeyJWTSecret, "router-secret")
	r, uc := setup(t)

	token, err := jwtmw.NewGenerator("router-secret", time.Hour).GenerateToken("operator")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/v1/decks/deck-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"deck-1"}, uc.deleted)
}
