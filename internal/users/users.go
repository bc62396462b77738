// Package users resolves the platform user behind a trigger request.
package users

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"xpertly/internal/logging"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Executions tracks a user's run quota.
type Executions struct {
	Count *int64 `json:"count"`
	Quota *int64 `json:"quota"`
}

// User is the platform user document attached to every run it triggers.
type User struct {
	TenantID   uuid.UUID  `json:"tenantId"`
	TenantName string     `json:"tenantName"`
	UserID     uuid.UUID  `json:"userId"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	UserEmail  string     `json:"userEmail"`
	Executions Executions `json:"xpertlyExecutions"`
	Role       string     `json:"role"`
}

// Resolver fetches user documents, caching recent lookups. Entries are keyed
// tenant+user so a user moving tenants cannot hit a stale record.
type Resolver struct {
	http    *http.Client
	baseURL string
	cache   *lru.Cache[string, *User]
	logger  logging.Logger
}

// NewResolver builds a Resolver with an LRU of cacheSize entries.
func NewResolver(httpClient *http.Client, baseURL string, cacheSize int, logger logging.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *User](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		http:    httpClient,
		baseURL: baseURL,
		cache:   cache,
		logger:  logging.OrNop(logger),
	}, nil
}

// Resolve returns the user document for userID within tenantID.
func (r *Resolver) Resolve(ctx context.Context, bearer string, tenantID uuid.UUID, userID string) (*User, error) {
	key := tenantID.String() + "/" + userID
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/v1/tenants/%s/users/%s", r.baseURL, tenantID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read user response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user lookup returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user document: %w", err)
	}

	r.cache.Add(key, &user)
	return &user, nil
}
