package asset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"xpertly/internal/logging"

	"github.com/google/uuid"
)

// Client fetches tagged objects from the core API.
type Client struct {
	http    *http.Client
	baseURL string
	logger  logging.Logger
}

// NewClient builds a lookup client rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL string, logger logging.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		logger:  logging.OrNop(logger),
	}
}

// byTagResponse groups results per tag; we only ever ask for one.
type byTagResponse struct {
	Devices map[string][]Device `json:"devices"`
	Assets  map[string][]Asset  `json:"assets"`
}

// ByTag resolves every object carrying tag within a tenant. Devices come
// first so they win positional references.
func (c *Client) ByTag(ctx context.Context, authToken string, tenantID uuid.UUID, tag string) ([]Object, error) {
	endpoint := fmt.Sprintf("%s/api/tenants/%s/assets-by-tags?tags=%s", c.baseURL, tenantID, url.QueryEscape(tag))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch assets for tag %q: %w", tag, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read assets response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("assets-by-tags %q returned %d", tag, resp.StatusCode)
		return nil, fmt.Errorf("assets-by-tags returned status %d", resp.StatusCode)
	}

	var decoded byTagResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode assets response: %w", err)
	}

	var objects []Object
	for i := range decoded.Devices[tag] {
		objects = append(objects, Object{Device: &decoded.Devices[tag][i]})
	}
	for i := range decoded.Assets[tag] {
		objects = append(objects, Object{Asset: &decoded.Assets[tag][i]})
	}
	return objects, nil
}
