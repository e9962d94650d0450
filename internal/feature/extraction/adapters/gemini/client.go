// Package gemini はGoogle Gemini APIを使用したデッキ写真の読み取りバックエンドを提供します。
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"

	"cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/feature/extraction/usecase"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"
)

// generator is the slice of genai.Models used here; tests replace it.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor はGemini APIの構造化出力でカードリストを読み取ります。
type GeminiExtractor struct {
	models generator
	model  string
}

// GeminiExtractorがModelBackendを実装していることをコンパイル時に検証します。
var (
	_ usecase.ModelBackend     = (*GeminiExtractor)(nil)
	_ usecase.MultiPassBackend = (*GeminiExtractor)(nil)
)

// NewGeminiExtractor はADCを使用してGeminiExtractorの新しいインスタンスを生成します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION
// もしくは GOOGLE_API_KEY が必要です。モデルは GEMINI_MODEL で上書きできます。
func NewGeminiExtractor(ctx context.Context) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = DefaultModel
	}
	return &GeminiExtractor{models: client.Models, model: model}, nil
}

func (g *GeminiExtractor) Name() string { return "gemini:" + g.model }

// Extract sends the image and the prompt and decodes the structured reply.
func (g *GeminiExtractor) Extract(ctx context.Context, req entity.ModelRequest) (entity.ModelResponse, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buildPrompt(req)),
			genai.NewPartFromBytes(req.Image, req.MIMEType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
		Temperature:      genai.Ptr[float32](0),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return entity.ModelResponse{}, classify(err)
	}
	return decodeResponse(resp.Text())
}

// SupportsMultiPass reports that follow-up prompts change what Gemini reads.
func (g *GeminiExtractor) SupportsMultiPass() bool { return true }

// buildPrompt asks for one entry per distinct card. The cube pool, when
// present, is given as the list of names the model should choose from.
// Follow-up passes ask only for cards not already found.
func buildPrompt(req entity.ModelRequest) string {
	var b strings.Builder
	b.WriteString("This photo shows a Magic: The Gathering deck laid out on a table. ")
	if req.Pass > 1 && len(req.Found) > 0 {
		fmt.Fprintf(&b, "A previous read of this photo found %d cards: %s. ", len(req.Found), strings.Join(req.Found, ", "))
		b.WriteString("Scan the photo again for cards that read missed: cards partly hidden behind others, ")
		b.WriteString("at the edges, rotated or in shadow. Return ONLY cards not in that list. ")
	} else {
		b.WriteString("List every card you can identify. ")
	}
	b.WriteString("For each card return its exact English name, ")
	b.WriteString("how many copies are visible (quantity), your confidence between 0 and 1, ")
	b.WriteString("and a short region hint such as \"top-left\". Do not include basic lands unless clearly visible. ")
	b.WriteString("Put anything worth flagging (glare, overlapping cards) in notes.")
	if len(req.Missing) > 0 {
		b.WriteString("\n\nLook specifically for these cube cards that have not been found yet. ")
		b.WriteString("Only return cards you can actually see:\n")
		b.WriteString(strings.Join(req.Missing, "\n"))
		return b.String()
	}
	if len(req.CardPool) > 0 {
		b.WriteString("\n\nThe deck was drafted from a cube; card names must come from this list:\n")
		b.WriteString(strings.Join(req.CardPool, "\n"))
	}
	return b.String()
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"cards": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name":       {Type: genai.TypeString},
						"quantity":   {Type: genai.TypeInteger},
						"confidence": {Type: genai.TypeNumber},
						"region":     {Type: genai.TypeString},
					},
					Required: []string{"name", "quantity", "confidence"},
				},
			},
			"notes": {Type: genai.TypeString},
		},
		Required: []string{"cards"},
	}
}

// decodeResponse parses the model JSON. Markdown fences are tolerated.
func decodeResponse(text string) (entity.ModelResponse, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return entity.ModelResponse{}, fmt.Errorf("%w: empty response", usecase.ErrMalformedResponse)
	}

	var out entity.ModelResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return entity.ModelResponse{}, fmt.Errorf("%w: %v", usecase.ErrMalformedResponse, err)
	}
	return out, nil
}

// classify tags rate limiting and server errors as transient.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isTransientStatus(apiErr.Code) {
		return fmt.Errorf("gemini http %d: %w: %v", apiErr.Code, usecase.ErrModelTransient, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && isTransientStatus(apiErrPtr.Code) {
		return fmt.Errorf("gemini http %d: %w: %v", apiErrPtr.Code, usecase.ErrModelTransient, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("gemini API request failed: %w", err)
}

func isTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
