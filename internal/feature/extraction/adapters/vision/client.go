// Package vision はGoogle Cloud Vision APIのOCRを使用したデッキ写真の読み取りバックエンドを提供します。
package vision

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/feature/extraction/usecase"
)

// annotator is the slice of the Vision client used here; tests replace it.
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// VisionOCRExtractor はDOCUMENT_TEXT_DETECTIONの結果からカード候補を組み立てます。
// 各テキストブロックの1行目を1件の候補とし、ブロックの信頼度を候補の信頼度とします。
type VisionOCRExtractor struct {
	client annotator
	closer func() error
}

// VisionOCRExtractorがModelBackendを実装していることをコンパイル時に検証します。
var _ usecase.ModelBackend = (*VisionOCRExtractor)(nil)

// NewVisionOCRExtractor はADCを使用してVisionOCRExtractorの新しいインスタンスを生成します。
func NewVisionOCRExtractor(ctx context.Context) (*VisionOCRExtractor, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &VisionOCRExtractor{client: client, closer: client.Close}, nil
}

// Close はVision APIクライアントを解放します。
func (v *VisionOCRExtractor) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}

func (v *VisionOCRExtractor) Name() string { return "cloud-vision-ocr" }

// Extract runs OCR on the image. The cube pool is not used by this backend;
// reconciliation narrows the names afterwards.
func (v *VisionOCRExtractor) Extract(ctx context.Context, req entity.ModelRequest) (entity.ModelResponse, error) {
	breq := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: req.Image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, breq)
	if err != nil {
		return entity.ModelResponse{}, classify(err)
	}
	if len(resp.GetResponses()) == 0 {
		return entity.ModelResponse{}, fmt.Errorf("%w: no annotation response", usecase.ErrMalformedResponse)
	}

	r := resp.GetResponses()[0]
	if r.GetError() != nil {
		return entity.ModelResponse{}, fmt.Errorf("vision API error: %s", r.GetError().GetMessage())
	}

	var blocks []*visionpb.Block
	for _, page := range r.GetFullTextAnnotation().GetPages() {
		blocks = append(blocks, page.GetBlocks()...)
	}
	return entity.ModelResponse{Cards: blocksToEntries(blocks)}, nil
}

// quantityPrefix matches "2 Brainstorm", "2x Brainstorm" and "2 x Brainstorm".
var quantityPrefix = regexp.MustCompile(`^(\d{1,2})\s*[xX]?\s+(.+)$`)

// blocksToEntries turns each OCR block into at most one entry.
func blocksToEntries(blocks []*visionpb.Block) []entity.ModelEntry {
	entries := make([]entity.ModelEntry, 0, len(blocks))
	for i, block := range blocks {
		line := firstLine(block)
		if !hasLetter(line) {
			continue
		}
		qty := 1.0
		if m := quantityPrefix.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				qty = float64(n)
				line = m[2]
			}
		}
		entries = append(entries, entity.ModelEntry{
			Name:       line,
			Quantity:   qty,
			Confidence: float64(block.GetConfidence()),
			Region:     fmt.Sprintf("block %d", i+1),
		})
	}
	return entries
}

// firstLine rebuilds the text of a block up to its first line break.
func firstLine(block *visionpb.Block) string {
	var b strings.Builder
	for _, para := range block.GetParagraphs() {
		for _, word := range para.GetWords() {
			for _, sym := range word.GetSymbols() {
				b.WriteString(sym.GetText())
				switch sym.GetProperty().GetDetectedBreak().GetType() {
				case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
					b.WriteByte(' ')
				case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
					return strings.TrimSpace(b.String())
				}
			}
		}
		// a paragraph ends a line as well
		if b.Len() > 0 {
			return strings.TrimSpace(b.String())
		}
	}
	return strings.TrimSpace(b.String())
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// classify marks retryable gRPC codes as transient.
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.Aborted:
		return fmt.Errorf("vision API request failed: %w: %v", usecase.ErrModelTransient, err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("vision API request failed: %w", context.DeadlineExceeded)
	}
	return fmt.Errorf("vision API request failed: %w", err)
}
