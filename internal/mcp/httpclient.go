package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/freeflow/internal/budget"
	"github.com/claude/freeflow/internal/catalog"
	"github.com/claude/freeflow/internal/engine"
	"github.com/claude/freeflow/internal/generator"
	"github.com/claude/freeflow/internal/models"
)

// HTTPClient implements Planner by calling the FreeFlow REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the catalog lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies Planner.
var _ Planner = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// statusError is a non-2xx API response.
type statusError struct {
	path   string
	status int
	body   []byte
}

func (e *statusError) Error() string {
	msg := strings.TrimSpace(string(e.body))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(e.body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.path, e.status, msg)
}

func (c *HTTPClient) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{path: path, status: resp.StatusCode, body: body}
	}
	return body, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	return c.do(req, path)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("httpclient: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path)
}

// Generate asks the server for a sequence. A 422 response is decoded back
// into a *generator.GenerationFailure.
func (c *HTTPClient) Generate(ctx context.Context, r generator.Request) (*generator.Result, error) {
	body, err := c.post(ctx, "/api/v1/sequences/generate", map[string]any{
		"duration_seconds": r.DurationSeconds,
		"tier":             int(r.Tier),
		"focus":            r.Focus,
		"save":             false,
	})
	if se, ok := err.(*statusError); ok && se.status == http.StatusUnprocessableEntity {
		var failure struct {
			Failure *generator.GenerationFailure `json:"failure"`
		}
		if json.Unmarshal(se.body, &failure) == nil && failure.Failure != nil {
			return nil, failure.Failure
		}
	}
	if err != nil {
		return nil, err
	}

	var res generator.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("httpclient: decode generation result: %w", err)
	}
	return &res, nil
}

func (c *HTTPClient) ValidateIDs(ctx context.Context, ids []string) (*engine.Validation, error) {
	body, err := c.post(ctx, "/api/v1/sequences/validate", map[string]any{"movement_ids": ids})
	if err != nil {
		return nil, err
	}

	var v engine.Validation
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("httpclient: decode validation: %w", err)
	}
	return &v, nil
}

func (c *HTTPClient) Movements(ctx context.Context, f catalog.Filter) (*engine.MovementList, error) {
	params := url.Values{}
	if f.MaxTier > 0 {
		params.Set("tier", strconv.Itoa(int(f.MaxTier)))
	}
	if f.Pattern != "" {
		params.Set("pattern", string(f.Pattern))
	}
	for _, m := range f.Muscles {
		params.Add("muscle", m)
	}

	body, err := c.get(ctx, "/api/v1/movements", params)
	if err != nil {
		return nil, err
	}

	var list engine.MovementList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("httpclient: decode movements: %w", err)
	}
	return &list, nil
}

func (c *HTTPClient) Budget(ctx context.Context, durationSeconds int, tier models.Tier) (*budget.Budget, error) {
	params := url.Values{}
	params.Set("duration_seconds", strconv.Itoa(durationSeconds))
	params.Set("tier", strconv.Itoa(int(tier)))

	body, err := c.get(ctx, "/api/v1/budget", params)
	if err != nil {
		return nil, err
	}

	var b budget.Budget
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("httpclient: decode budget: %w", err)
	}
	return &b, nil
}

func (c *HTTPClient) CatalogInfo(ctx context.Context) (*CatalogInfo, error) {
	body, err := c.get(ctx, "/api/v1/catalog", nil)
	if err != nil {
		return nil, err
	}

	var info CatalogInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("httpclient: decode catalog info: %w", err)
	}
	return &info, nil
}
