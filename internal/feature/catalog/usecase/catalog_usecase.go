package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/shared/cardname"
	"cube_wizard/internal/shared/ratelimiter"
	"cube_wizard/internal/shared/retry"
)

// CatalogSource はカードカタログの外部APIを抽象化するインターフェースです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type CatalogSource interface {
	// FetchNamed returns the card whose name matches exactly (case-insensitive).
	FetchNamed(ctx context.Context, name, setHint string) (entity.CatalogEntry, error)
	// FetchFuzzy returns the catalog's best fuzzy guess for name.
	FetchFuzzy(ctx context.Context, name string) (entity.CatalogEntry, error)
	// Autocomplete returns card names starting with or resembling query.
	Autocomplete(ctx context.Context, query string) ([]string, error)
	// FetchByOracleID returns a printing of the card with the given oracle id.
	FetchByOracleID(ctx context.Context, oracleID string) (entity.CatalogEntry, error)
}

// EntryCache はプロセス内のカタログキャッシュです。
// Keys are produced by cardname.Key so that spelling variants share one entry.
type EntryCache interface {
	Get(key string) (entity.CatalogEntry, bool)
	Put(key string, e entity.CatalogEntry)
	ByOracleID(oracleID string) (entity.CatalogEntry, bool)
	IsMissing(key string) bool
	PutMissing(key string)
	GetSuggestions(key string) ([]string, bool)
	PutSuggestions(key string, names []string)
	Invalidate(key string)
	Purge()
}

// Catalog is the lookup surface consumed by reconciliation.
type Catalog interface {
	Lookup(ctx context.Context, name, setHint string) (entity.CatalogEntry, error)
	LookupOracleID(ctx context.Context, oracleID string) (entity.CatalogEntry, error)
	Suggest(ctx context.Context, name string) ([]string, error)
}

const (
	oracleKeyPrefix  = "oracle|"
	defaultAttempts  = 3
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 4 * time.Second
	suggestKeyPrefix = "suggest|"
)

// DefaultRetryPolicy はカタログ呼び出し用の既定リトライポリシーを返します。
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: defaultAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, ErrCatalogTransient)
		},
	}
}

// CatalogService resolves card names against the catalog with caching,
// rate limiting and retries. A single instance is shared by all workers.
type CatalogService struct {
	source  CatalogSource
	cache   EntryCache
	limiter ratelimiter.RateLimiterInterface
	policy  retry.Policy
	group   singleflight.Group
}

var _ Catalog = (*CatalogService)(nil)

// NewCatalogService は新しい CatalogService を作成します。
func NewCatalogService(source CatalogSource, cache EntryCache, limiter ratelimiter.RateLimiterInterface, policy retry.Policy) *CatalogService {
	return &CatalogService{source: source, cache: cache, limiter: limiter, policy: policy}
}

// Lookup returns the catalog entry for name. The exact catalog lookup is
// accepted only when the returned card's canonical or face name normalizes to
// the same key as name. Lookups of a cached key never reach the network.
func (s *CatalogService) Lookup(ctx context.Context, name, setHint string) (entity.CatalogEntry, error) {
	key := cardname.Key(name, setHint)
	if key == "" {
		return entity.CatalogEntry{}, ErrCardNotFound
	}
	if e, ok := s.cache.Get(key); ok {
		return e, nil
	}
	if s.cache.IsMissing(key) {
		return entity.CatalogEntry{}, ErrCardNotFound
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		// another flight may have filled the cache while we waited on the group
		if e, ok := s.cache.Get(key); ok {
			return e, nil
		}
		var out entity.CatalogEntry
		err := s.call(ctx, func(ctx context.Context) error {
			e, err := s.source.FetchNamed(ctx, name, setHint)
			if err != nil {
				return err
			}
			out = e
			return nil
		})
		if err != nil {
			return entity.CatalogEntry{}, err
		}
		if !out.MatchesName(name) {
			return entity.CatalogEntry{}, ErrCardNotFound
		}
		s.cache.Put(key, out)
		return out, nil
	})
	if shared {
		slog.Debug("catalog lookup collapsed", "card", name)
	}
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			s.cache.PutMissing(key)
			return entity.CatalogEntry{}, ErrCardNotFound
		}
		return entity.CatalogEntry{}, err
	}
	return v.(entity.CatalogEntry), nil
}

// LookupOracleID returns the catalog entry with the given oracle id. Entries
// already cached under their name are served locally; fetched entries are
// cached under their canonical name.
func (s *CatalogService) LookupOracleID(ctx context.Context, oracleID string) (entity.CatalogEntry, error) {
	if oracleID == "" {
		return entity.CatalogEntry{}, ErrCardNotFound
	}
	if e, ok := s.cache.ByOracleID(oracleID); ok {
		return e, nil
	}

	v, err, _ := s.group.Do(oracleKeyPrefix+oracleID, func() (any, error) {
		var out entity.CatalogEntry
		err := s.call(ctx, func(ctx context.Context) error {
			e, err := s.source.FetchByOracleID(ctx, oracleID)
			if err != nil {
				return err
			}
			out = e
			return nil
		})
		if err != nil {
			return entity.CatalogEntry{}, err
		}
		if out.OracleID != oracleID {
			return entity.CatalogEntry{}, ErrCardNotFound
		}
		s.cache.Put(cardname.Key(out.CanonicalName, ""), out)
		return out, nil
	})
	if err != nil {
		return entity.CatalogEntry{}, err
	}
	return v.(entity.CatalogEntry), nil
}

// Suggest returns candidate canonical names for a misspelled name. The
// catalog's own fuzzy guess comes first, followed by autocomplete results.
// Entries found by the fuzzy guess are cached so that a later Lookup of the
// suggestion is served locally.
func (s *CatalogService) Suggest(ctx context.Context, name string) ([]string, error) {
	norm := cardname.Normalize(name)
	if norm == "" {
		return nil, nil
	}
	key := suggestKeyPrefix + norm
	if names, ok := s.cache.GetSuggestions(key); ok {
		return names, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var names []string
		seen := map[string]struct{}{}
		add := func(n string) {
			if n == "" {
				return
			}
			if _, ok := seen[n]; ok {
				return
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}

		var fuzzy entity.CatalogEntry
		err := s.call(ctx, func(ctx context.Context) error {
			e, err := s.source.FetchFuzzy(ctx, name)
			if err != nil {
				return err
			}
			fuzzy = e
			return nil
		})
		switch {
		case err == nil:
			add(fuzzy.CanonicalName)
			s.cache.Put(cardname.Key(fuzzy.CanonicalName, ""), fuzzy)
		case errors.Is(err, ErrCardNotFound):
		default:
			return nil, err
		}

		var completions []string
		err = s.call(ctx, func(ctx context.Context) error {
			c, err := s.source.Autocomplete(ctx, name)
			if err != nil {
				return err
			}
			completions = c
			return nil
		})
		if err != nil && !errors.Is(err, ErrCardNotFound) {
			return nil, err
		}
		for _, c := range completions {
			add(c)
		}

		s.cache.PutSuggestions(key, names)
		return names, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached entry for name and set hint so the next Lookup
// fetches it again.
func (s *CatalogService) Invalidate(name, setHint string) {
	key := cardname.Key(name, setHint)
	if key == "" {
		return
	}
	s.cache.Invalidate(key)
	s.cache.Invalidate(suggestKeyPrefix + cardname.Normalize(name))
	slog.Info("catalog entry invalidated", "card", name, "set", setHint)
}

// Purge drops every cached entry.
func (s *CatalogService) Purge() {
	s.cache.Purge()
	slog.Info("catalog cache purged")
}

// call runs one catalog request through the limiter and the retry policy.
// Exhausted or non-retryable failures other than not-found become
// ErrCatalogUnavailable.
func (s *CatalogService) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if err != nil && !errors.Is(err, ErrCardNotFound) {
			slog.Warn("catalog request failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCardNotFound) {
		return ErrCardNotFound
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
}
