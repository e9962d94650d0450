package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cube_wizard/internal/feature/catalog/domain/entity"
	"cube_wizard/internal/feature/catalog/usecase"
	"cube_wizard/internal/platform/externalapi/scryfall/dto"
)

// Client はScryfall APIからカード情報を取得するCatalogSource実装です。
type Client struct {
	cfg    Config
	client *http.Client
}

// ClientがCatalogSourceを実装していることをコンパイル時に検証します。
var _ usecase.CatalogSource = (*Client)(nil)

// NewClient は指定された設定とHTTPクライアントでClientの新しいインスタンスを生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client}
}

// FetchNamed は /cards/named?exact= でカード名の完全一致検索を行います。
func (c *Client) FetchNamed(ctx context.Context, name, setHint string) (entity.CatalogEntry, error) {
	q := url.Values{}
	q.Set("exact", strings.TrimSpace(name))
	if setHint != "" {
		q.Set("set", strings.ToLower(setHint))
	}
	return c.fetchCard(ctx, "/cards/named", q)
}

// FetchFuzzy は /cards/named?fuzzy= でScryfallの曖昧検索を行います。
// 候補が複数ある場合もScryfallは404を返すため、ErrCardNotFoundになります。
func (c *Client) FetchFuzzy(ctx context.Context, name string) (entity.CatalogEntry, error) {
	q := url.Values{}
	q.Set("fuzzy", strings.TrimSpace(name))
	return c.fetchCard(ctx, "/cards/named", q)
}

// FetchByOracleID は /cards/search?q=oracleid: でOracle IDに対応するカードを取得します。
// 一致するカードがない場合Scryfallは404を返すため、ErrCardNotFoundになります。
func (c *Client) FetchByOracleID(ctx context.Context, oracleID string) (entity.CatalogEntry, error) {
	q := url.Values{}
	q.Set("q", "oracleid:"+strings.TrimSpace(oracleID))
	q.Set("unique", "cards")

	var list dto.CardList
	if err := c.get(ctx, "/cards/search", q, &list); err != nil {
		return entity.CatalogEntry{}, err
	}
	if len(list.Data) == 0 {
		return entity.CatalogEntry{}, usecase.ErrCardNotFound
	}
	return toEntry(list.Data[0])
}

// Autocomplete は /cards/autocomplete で最大20件のカード名候補を取得します。
func (c *Client) Autocomplete(ctx context.Context, query string) ([]string, error) {
	q := url.Values{}
	q.Set("q", strings.TrimSpace(query))

	var body dto.Catalog
	if err := c.get(ctx, "/cards/autocomplete", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

func (c *Client) fetchCard(ctx context.Context, path string, q url.Values) (entity.CatalogEntry, error) {
	var card dto.Card
	if err := c.get(ctx, path, q, &card); err != nil {
		return entity.CatalogEntry{}, err
	}
	return toEntry(card)
}

// get performs a GET request and decodes the JSON body into out.
// 404 maps to ErrCardNotFound; transport failures, 429 and 5xx are wrapped
// with ErrCatalogTransient so the retry policy picks them up.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := fmt.Sprintf("%s%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("scryfall request %s: %w: %v", path, usecase.ErrCatalogTransient, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	switch {
	case res.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, res.Body)
		return usecase.ErrCardNotFound
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return fmt.Errorf("scryfall http %d: %w", res.StatusCode, usecase.ErrCatalogTransient)
	case res.StatusCode >= 400:
		var apiErr dto.Error
		if err := json.NewDecoder(res.Body).Decode(&apiErr); err == nil && apiErr.Details != "" {
			return fmt.Errorf("scryfall http %d: %s", res.StatusCode, apiErr.Details)
		}
		return fmt.Errorf("scryfall http %d", res.StatusCode)
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode scryfall response: %w: %v", usecase.ErrCatalogTransient, err)
	}
	return nil
}

// toEntry converts a Scryfall card into a catalog entry.
func toEntry(card dto.Card) (entity.CatalogEntry, error) {
	if card.Name == "" {
		return entity.CatalogEntry{}, errors.New("scryfall card without name")
	}

	e := entity.CatalogEntry{
		OracleID:      card.OracleID,
		ScryfallID:    card.ID,
		CanonicalName: card.Name,
		SetCode:       card.Set,
		ManaCost:      card.ManaCost,
		CMC:           card.CMC,
		TypeLine:      card.TypeLine,
		ColorIdentity: card.ColorIdentity,
		Rarity:        card.Rarity,
		EDHRecRank:    card.EDHRecRank,
	}
	for _, face := range card.CardFaces {
		e.FaceNames = append(e.FaceNames, face.Name)
	}
	// reversible cards carry the oracle id and mana cost on their faces only
	if e.OracleID == "" && len(card.CardFaces) > 0 {
		e.OracleID = card.CardFaces[0].OracleID
	}
	if e.ManaCost == "" && len(card.CardFaces) > 0 {
		e.ManaCost = card.CardFaces[0].ManaCost
	}
	if e.OracleID == "" {
		return entity.CatalogEntry{}, fmt.Errorf("scryfall card %q without oracle id", card.Name)
	}
	if card.ReleasedAt != "" {
		tm, err := time.Parse("2006-01-02", card.ReleasedAt)
		if err != nil {
			return entity.CatalogEntry{}, fmt.Errorf("parse released_at %q: %w", card.ReleasedAt, err)
		}
		e.ReleasedAt = tm
	}
	return e, nil
}
