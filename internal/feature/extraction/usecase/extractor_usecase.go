package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"cube_wizard/internal/feature/extraction/domain/entity"
	"cube_wizard/internal/platform/imaging"
	"cube_wizard/internal/shared/cardname"
	"cube_wizard/internal/shared/retry"
)

// ModelBackend は画像からカードリストを読み取る外部モデルを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type ModelBackend interface {
	Name() string
	Extract(ctx context.Context, req entity.ModelRequest) (entity.ModelResponse, error)
}

// Extractor validates images, calls the vision backend under a concurrency
// cap and turns its output into validated candidates.
type Extractor struct {
	backend ModelBackend
	cfg     Config
	sem     *semaphore.Weighted
	policy  retry.Policy
}

// DefaultRetryPolicy は1回だけ再試行する（合計2回）モデル呼び出し用ポリシーを返します。
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		BaseDelay:   2 * time.Second,
		MaxDelay:    2 * time.Second,
		Retryable:   isRetryable,
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrModelTransient) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded)
}

// NewExtractor は新しい Extractor を作成します。
func NewExtractor(backend ModelBackend, cfg Config, policy retry.Policy) *Extractor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.MaxPoolInPrompt <= 0 {
		cfg.MaxPoolInPrompt = MaxPoolInPrompt
	}
	return &Extractor{
		backend: backend,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		policy:  policy,
	}
}

// Extract reads the card list from one deck photo.
func (e *Extractor) Extract(ctx context.Context, image []byte, hint entity.CubeHint) (entity.Extraction, error) {
	prepared, err := imaging.Prepare(image, imaging.Options{
		MaxDimension: e.cfg.MaxDimension,
		MinShortSide: e.cfg.MinShortSide,
		JPEGQuality:  e.cfg.JPEGQuality,
	})
	if err != nil {
		return entity.Extraction{}, fmt.Errorf("%w: %v", ErrImageTooDegraded, err)
	}
	if prepared.Orientation != 1 {
		slog.Debug("image rotated upright", "exif_orientation", prepared.Orientation)
	}
	if prepared.Resized {
		slog.Debug("image downsampled", "from_w", prepared.OriginalWidth, "from_h", prepared.OriginalHeight, "to_w", prepared.Width, "to_h", prepared.Height)
	}

	pool := hint.CardPool
	if len(pool) > e.cfg.MaxPoolInPrompt {
		pool = pool[:e.cfg.MaxPoolInPrompt]
	}
	req := entity.ModelRequest{Image: prepared.Data, MIMEType: prepared.MIMEType, CardPool: pool}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return entity.Extraction{}, err
	}
	defer e.sem.Release(1)

	req.Pass = 1
	resp, attempts, err := e.call(ctx, req)
	if err != nil {
		return entity.Extraction{}, err
	}

	candidates, rejected := Validate(resp.Cards)
	for _, r := range rejected {
		slog.Info("model entry rejected", "card", r.Name, "reason", r.Reason)
	}
	if len(candidates) == 0 {
		return entity.Extraction{}, fmt.Errorf("%w: no valid card entries (%d rejected)", ErrExtractionFailed, len(rejected))
	}

	read := passResult{candidates: candidates, rejected: rejected, attempts: attempts, passes: 1}
	if n := strings.TrimSpace(resp.Notes); n != "" {
		read.notes = append(read.notes, n)
	}
	if e.multiPass(pool) {
		read, err = e.followUp(ctx, req, read)
		if err != nil {
			return entity.Extraction{}, err
		}
	}

	summary := Summarize(read.candidates)
	summary.Backend = e.backend.Name()
	summary.Attempts = read.attempts
	summary.Passes = read.passes
	summary.Resized = prepared.Resized
	summary.Width = prepared.Width
	summary.Height = prepared.Height
	summary.Notes = strings.Join(read.notes, "; ")
	summary.Rejected = read.rejected
	summary.PoolGiven = len(pool)

	return entity.Extraction{Candidates: read.candidates, Summary: summary}, nil
}

// MultiPassBackend is implemented by backends whose reading follows the
// prompt, so that follow-up passes can surface cards the first read missed.
type MultiPassBackend interface {
	SupportsMultiPass() bool
}

type passResult struct {
	candidates []entity.RawCardCandidate
	rejected   []entity.RejectedEntry
	notes      []string
	attempts   int
	passes     int
}

func (e *Extractor) multiPass(pool []string) bool {
	if !e.cfg.MultiPass || len(pool) == 0 {
		return false
	}
	mp, ok := e.backend.(MultiPassBackend)
	return ok && mp.SupportsMultiPass()
}

// followUp runs the cube-seeded passes while the deck still looks short.
// Pass 2 asks for cards missed next to the ones already found. Pass 3 names
// the cube cards still unaccounted for and runs only below 90% of the
// expected deck size. A failed follow-up keeps what was read so far.
func (e *Extractor) followUp(ctx context.Context, req entity.ModelRequest, read passResult) (passResult, error) {
	expected := e.cfg.ExpectedDeckSize
	if expected <= 0 {
		expected = DefaultExpectedDeckSize
	}

	for pass := 2; pass <= 3; pass++ {
		total := totalQuantity(read.candidates)
		if total >= expected {
			break
		}
		next := req
		next.Pass = pass
		next.Found = candidateNames(read.candidates)
		if pass == 3 {
			if !e.cfg.ValidationPass || float64(total) >= 0.9*float64(expected) {
				break
			}
			next.Missing = missingFromPool(req.CardPool, read.candidates)
			if len(next.Missing) == 0 {
				break
			}
		}

		resp, attempts, err := e.call(ctx, next)
		read.attempts += attempts
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return read, ctxErr
			}
			slog.Warn("follow-up extraction pass failed", "backend", e.backend.Name(), "pass", pass, "error", err)
			break
		}

		added, rejected := Validate(resp.Cards)
		for _, r := range rejected {
			slog.Info("model entry rejected", "card", r.Name, "reason", r.Reason, "pass", pass)
		}
		before := len(read.candidates)
		read.candidates = mergeCandidates(read.candidates, added)
		read.rejected = append(read.rejected, rejected...)
		if n := strings.TrimSpace(resp.Notes); n != "" {
			read.notes = append(read.notes, n)
		}
		read.passes = pass
		slog.Debug("follow-up extraction pass", "pass", pass, "new_cards", len(read.candidates)-before)
	}
	return read, nil
}

// call runs one model request through the retry policy with the per-attempt
// timeout. Parent cancellation is returned as is.
func (e *Extractor) call(ctx context.Context, req entity.ModelRequest) (entity.ModelResponse, int, error) {
	var (
		resp     entity.ModelResponse
		attempts int
	)
	err := e.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts = attempt
		attemptCtx := ctx
		if e.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()
		}
		r, err := e.backend.Extract(attemptCtx, req)
		if err != nil {
			slog.Warn("vision model call failed", "backend", e.backend.Name(), "pass", req.Pass, "attempt", attempt, "error", err)
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.ModelResponse{}, attempts, ctxErr
		}
		return entity.ModelResponse{}, attempts, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return resp, attempts, nil
}

// mergeCandidates appends the entries of added whose names were not read yet.
func mergeCandidates(have, added []entity.RawCardCandidate) []entity.RawCardCandidate {
	seen := make(map[string]struct{}, len(have)+len(added))
	for _, c := range have {
		seen[cardname.Normalize(c.Name)] = struct{}{}
	}
	for _, c := range added {
		key := cardname.Normalize(c.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		have = append(have, c)
	}
	return have
}

func candidateNames(candidates []entity.RawCardCandidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

// missingFromPool lists the pool cards not matching any candidate by name.
func missingFromPool(pool []string, candidates []entity.RawCardCandidate) []string {
	found := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		found[cardname.Normalize(c.Name)] = struct{}{}
	}
	var missing []string
	for _, name := range pool {
		if _, ok := found[cardname.Normalize(name)]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func totalQuantity(candidates []entity.RawCardCandidate) int {
	return entity.Extraction{Candidates: candidates}.TotalQuantity()
}

// Validate applies the output schema: a non-empty name, a positive integral
// quantity and a confidence clamped to [0, 1]. Violating entries are returned
// as rejected.
func Validate(entries []entity.ModelEntry) ([]entity.RawCardCandidate, []entity.RejectedEntry) {
	candidates := make([]entity.RawCardCandidate, 0, len(entries))
	var rejected []entity.RejectedEntry

	for _, en := range entries {
		name := strings.Join(strings.Fields(en.Name), " ")
		switch {
		case name == "":
			rejected = append(rejected, entity.RejectedEntry{Name: en.Name, Reason: "empty name"})
			continue
		case math.IsNaN(en.Quantity) || en.Quantity < 1 || en.Quantity != math.Trunc(en.Quantity):
			rejected = append(rejected, entity.RejectedEntry{Name: name, Reason: fmt.Sprintf("invalid quantity %v", en.Quantity)})
			continue
		case en.Quantity > math.MaxInt32:
			rejected = append(rejected, entity.RejectedEntry{Name: name, Reason: "quantity out of range"})
			continue
		}

		candidates = append(candidates, entity.RawCardCandidate{
			Name:         name,
			Quantity:     int(en.Quantity),
			Confidence:   clamp01(en.Confidence),
			SourceRegion: strings.TrimSpace(en.Region),
		})
	}
	return candidates, rejected
}

// Summarize computes the mean and minimum confidence and the overall level.
func Summarize(candidates []entity.RawCardCandidate) entity.ConfidenceSummary {
	if len(candidates) == 0 {
		return entity.ConfidenceSummary{Level: entity.ConfidenceLow}
	}
	sum, min := 0.0, 1.0
	for _, c := range candidates {
		sum += c.Confidence
		if c.Confidence < min {
			min = c.Confidence
		}
	}
	mean := sum / float64(len(candidates))

	level := entity.ConfidenceLow
	switch {
	case mean >= 0.85 && min >= 0.5:
		level = entity.ConfidenceHigh
	case mean >= 0.6:
		level = entity.ConfidenceMedium
	}
	return entity.ConfidenceSummary{Level: level, Mean: mean, Min: min}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
