package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/feature/extraction/usecase"
)

// mockGenerator はテスト用のgeneratorモック実装です。
type mockGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(s, genai.RoleModel),
		}},
	}
}

func TestGeminiExtractor_Extract(t *testing.T) {
	t.Parallel()

	gen := &mockGenerator{GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		assert.Equal(t, DefaultModel, model)
		require.Len(t, contents, 1)
		require.Len(t, contents[0].Parts, 2)
		assert.Contains(t, contents[0].Parts[0].Text, "Brainstorm")
		require.NotNil(t, contents[0].Parts[1].InlineData)
		assert.Equal(t, "image/jpeg", contents[0].Parts[1].InlineData.MIMEType)
		assert.Equal(t, "application/json", config.ResponseMIMEType)
		require.NotNil(t, config.ResponseSchema)
		return textResponse(`{"cards":[{"name":"Lightning Bolt","quantity":1,"confidence":0.93,"region":"top"}],"notes":"ok"}`), nil
	}}
	g := &GeminiExtractor{models: gen, model: DefaultModel}

	got, err := g.Extract(context.Background(), entity.ModelRequest{Image: []byte{1, 2, 3}, MIMEType: "image/jpeg", CardPool: []string{"Brainstorm"}})
	require.NoError(t, err)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, entity.ModelEntry{Name: "Lightning Bolt", Quantity: 1, Confidence: 0.93, Region: "top"}, got.Cards[0])
	assert.Equal(t, "ok", got.Notes)
	assert.Equal(t, "gemini:"+DefaultModel, g.Name())
}

func TestGeminiExtractor_Extract_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		resp          *genai.GenerateContentResponse
		err           error
		wantTransient bool
		wantMalformed bool
	}{
		{"rate limited", nil, genai.APIError{Code: 429, Message: "quota"}, true, false},
		{"server error", nil, genai.APIError{Code: 503, Message: "unavailable"}, true, false},
		{"bad request", nil, genai.APIError{Code: 400, Message: "invalid"}, false, false},
		{"malformed body", textResponse("the deck has some cards"), nil, false, true},
		{"empty body", textResponse(""), nil, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gen := &mockGenerator{GenerateContentFunc: func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return tt.resp, tt.err
			}}
			g := &GeminiExtractor{models: gen, model: DefaultModel}

			_, err := g.Extract(context.Background(), entity.ModelRequest{Image: []byte{1}, MIMEType: "image/png"})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, errors.Is(err, usecase.ErrModelTransient))
			assert.Equal(t, tt.wantMalformed, errors.Is(err, usecase.ErrMalformedResponse))
		})
	}
}

func TestDecodeResponse_FencedJSON(t *testing.T) {
	t.Parallel()

	got, err := decodeResponse("```json\n{\"cards\":[{\"name\":\"Brainstorm\",\"quantity\":2,\"confidence\":0.8}]}\n```")
	require.NoError(t, err)
	require.Len(t, got.Cards, 1)
	assert.Equal(t, 2.0, got.Cards[0].Quantity)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	withoutPool := buildPrompt(entity.ModelRequest{Pass: 1})
	assert.NotContains(t, withoutPool, "drafted from a cube")
	assert.Contains(t, withoutPool, "List every card")

	withPool := buildPrompt(entity.ModelRequest{Pass: 1, CardPool: []string{"Lightning Bolt", "Brainstorm"}})
	assert.True(t, strings.HasSuffix(withPool, "Lightning Bolt\nBrainstorm"))
}

// TestBuildPrompt_FollowUpPasses は追加パスで既出カードと未発見のキューブカードがプロンプトに入ることを検証します。
func TestBuildPrompt_FollowUpPasses(t *testing.T) {
	t.Parallel()

	second := buildPrompt(entity.ModelRequest{Pass: 2, CardPool: []string{"Lightning Bolt", "Brainstorm"}, Found: []string{"Lightning Bolt"}})
	assert.Contains(t, second, "found 1 cards: Lightning Bolt")
	assert.Contains(t, second, "Return ONLY cards not in that list")
	assert.NotContains(t, second, "List every card")
	assert.True(t, strings.HasSuffix(second, "Lightning Bolt\nBrainstorm"))

	third := buildPrompt(entity.ModelRequest{Pass: 3, CardPool: []string{"Lightning Bolt", "Brainstorm"}, Found: []string{"Lightning Bolt"}, Missing: []string{"Brainstorm"}})
	assert.Contains(t, third, "have not been found yet")
	assert.True(t, strings.HasSuffix(third, "actually see:\nBrainstorm"))

	assert.True(t, (&GeminiExtractor{}).SupportsMultiPass())
}
