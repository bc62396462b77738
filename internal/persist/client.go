// Package persist talks to the elastic gateway that stores run logs and
// suspended invocation payloads.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"xpertly/internal/logging"

	"github.com/google/uuid"
)

const (
	runLogIndexPrefix    = "xpertly_worker_run_"
	suspendedIndexPrefix = "xpertly_handler_payload_"
)

// Client is the gateway client. Writes go through post_to_elastic with an
// index name and a payload; suspended payloads are read back by run id.
type Client struct {
	http    *http.Client
	baseURL string
	logger  logging.Logger
}

// NewClient builds a gateway client rooted at baseURL.
func NewClient(httpClient *http.Client, baseURL string, logger logging.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		logger:  logging.OrNop(logger),
	}
}

func (c *Client) post(ctx context.Context, authToken, index string, payload any) error {
	envelope := map[string]any{
		"index":   index,
		"payload": payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", index, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/client/post_to_elastic", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", index, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s returned status %d", index, resp.StatusCode)
	}
	return nil
}

// AppendRunLog writes one log event into the tenant's run index.
func (c *Client) AppendRunLog(ctx context.Context, authToken string, tenantID uuid.UUID, entry any) error {
	return c.post(ctx, authToken, runLogIndexPrefix+tenantID.String(), entry)
}

// StoreSuspended persists a suspended invocation payload under its run id.
func (c *Client) StoreSuspended(ctx context.Context, authToken string, runID uuid.UUID, payload any) error {
	return c.post(ctx, authToken, suspendedIndexPrefix+runID.String(), payload)
}

// FetchSuspended reads a suspended invocation payload back by run id.
func (c *Client) FetchSuspended(ctx context.Context, authToken, runID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/v1/client/get_handler_payload/%s", c.baseURL, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch suspended payload %s: %w", runID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read suspended payload: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch suspended payload %s returned status %d", runID, resp.StatusCode)
	}
	return json.RawMessage(body), nil
}
