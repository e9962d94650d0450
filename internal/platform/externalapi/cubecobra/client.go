package cubecobra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"cube_wizard/internal/platform/externalapi/cubecobra/dto"
)

// ErrCubeNotFound is returned when CubeCobra does not know the cube id.
var ErrCubeNotFound = errors.New("cube not found")

// Client はCubeCobraからキューブのカードプールを取得します。
// 取得したプールはプロセスの存続期間中キャッシュされます。
type Client struct {
	cfg    Config
	client *http.Client

	mu    sync.RWMutex
	pools map[string][]string
	group singleflight.Group
}

// NewClient は新しい Client を生成します。
func NewClient(cfg Config, client *http.Client) *Client {
	return &Client{cfg: cfg, client: client, pools: map[string][]string{}}
}

// CardPool returns the sorted, de-duplicated mainboard card names of a cube.
func (c *Client) CardPool(ctx context.Context, cubeID string) ([]string, error) {
	cubeID = strings.TrimSpace(cubeID)
	if cubeID == "" {
		return nil, ErrCubeNotFound
	}

	c.mu.RLock()
	pool, ok := c.pools[cubeID]
	c.mu.RUnlock()
	if ok {
		return pool, nil
	}

	v, err, _ := c.group.Do(cubeID, func() (any, error) {
		pool, err := c.fetch(ctx, cubeID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.pools[cubeID] = pool
		c.mu.Unlock()
		slog.Info("loaded cube card pool", "cube_id", cubeID, "cards", len(pool))
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (c *Client) fetch(ctx context.Context, cubeID string) ([]string, error) {
	u := fmt.Sprintf("%s/cube/api/cubeJSON/%s", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(cubeID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cubecobra request: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrCubeNotFound, cubeID)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("cubecobra http %d", res.StatusCode)
	}

	var body dto.CubeResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode cubecobra response: %w", err)
	}
	return poolNames(body.Cards.Mainboard), nil
}

// poolNames prefers details.name and falls back to the top-level name.
func poolNames(cards []dto.CubeCard) []string {
	seen := make(map[string]struct{}, len(cards))
	names := make([]string, 0, len(cards))
	for _, card := range cards {
		name := card.Name
		if card.Details != nil && card.Details.Name != "" {
			name = card.Details.Name
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
