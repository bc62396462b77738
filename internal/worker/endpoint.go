package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/integration"
)

// pathParamRe rewrites ":param" URL segments into substitution references.
var pathParamRe = regexp.MustCompile(`:([^\{/]+)`)

// Endpoint is an HTTP call against a vendor integration. Webhook tasks use
// the same shape without a backing integration.
type Endpoint struct {
	Vendor        string            `json:"vendor"`
	IntegrationID string            `json:"integrationId,omitempty"`
	Method        string            `json:"method"`
	Headers       []Header          `json:"headers"`
	PathParams    map[string]string `json:"pathParams,omitempty"`
	QueryParams   map[string]string `json:"queryParams,omitempty"`
	Body          any               `json:"body,omitempty"`
	TargetURL     string            `json:"targetUrl"`

	// resolved during prepare, never serialized
	integ integration.Integration
}

// AddHeader sets a header, replacing any existing value under the same key.
func (e *Endpoint) AddHeader(key, value string) {
	for i := range e.Headers {
		if e.Headers[i].Key == key {
			e.Headers[i].Value = value
			return
		}
	}
	e.Headers = append(e.Headers, Header{Key: key, Value: value})
}

// prepare resolves the integration, injects its credentials and rewrites
// ":param" path segments into substitution references.
func (e *Endpoint) prepare(ctx context.Context, inv *Invocation) error {
	integ, err := inv.deps.Integrations.Lookup(ctx, inv.AuthToken, inv.TenantID, e.Vendor, e.IntegrationID)
	if err != nil {
		return xerrors.WrapPrep(err, "integration not found")
	}
	e.integ = integ

	if err := injectAuth(ctx, inv, e, integ); err != nil {
		return err
	}

	e.TargetURL = pathParamRe.ReplaceAllString(e.TargetURL, "{{$1}}")
	return nil
}

// execute performs the HTTP call and wraps the parsed body in the
// {statusCode, response} envelope every downstream reference expects.
func (e *Endpoint) execute(ctx context.Context, inv *Invocation) (map[string]any, error) {
	parsed, err := url.Parse(e.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target url %q: %w", e.TargetURL, err)
	}
	if len(e.QueryParams) > 0 {
		query := parsed.Query()
		for key, value := range e.QueryParams {
			query.Set(key, value)
		}
		parsed.RawQuery = query.Encode()
	}

	var body io.Reader
	if e.Body != nil {
		raw, err := json.Marshal(e.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(e.Method), parsed.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, header := range e.Headers {
		req.Header.Set(header.Key, header.Value)
	}

	resp, err := inv.deps.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", req.Method, parsed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var response any
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("response from %s is not JSON: %w", parsed, err)
	}

	return map[string]any{
		"statusCode": resp.StatusCode,
		"response":   response,
	}, nil
}
