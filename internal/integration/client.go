package integration

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"xpertly/internal/logging"

	"github.com/google/uuid"
)

// Client fetches integration documents from the core API.
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

// Lookup resolves one integration by vendor and id within a tenant.
func (c *Client) Lookup(ctx context.Context, authToken string, tenantID uuid.UUID, vendor string, integrationID string) (Integration, error) {
	url := fmt.Sprintf("%s/api/tenants/%s/integrations/%s/%s", c.baseURL, tenantID, vendor, integrationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch integration %s/%s: %w", vendor, integrationID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read integration response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("integration lookup %s/%s returned %d", vendor, integrationID, resp.StatusCode)
		return nil, fmt.Errorf("integration lookup returned status %d", resp.StatusCode)
	}

	integ, err := Parse(body)
	if err != nil {
		return nil, err
	}
	return integ, nil
}
