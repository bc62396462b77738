package users

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"xpertly/internal/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFetchesAndCaches(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, fmt.Sprintf("/v1/tenants/%s/users/%s", tenantID, userID), r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{
			"tenantId": %q, "tenantName": "Acme",
			"userId": %q, "firstName": "Jo", "lastName": "Net",
			"userEmail": "jo@acme.example", "role": "Engineer",
			"xpertlyExecutions": {"count": 3, "quota": 100}
		}`, tenantID, userID)
	}))
	defer srv.Close()

	resolver, err := NewResolver(srv.Client(), srv.URL, 8, logging.Nop())
	require.NoError(t, err)

	user, err := resolver.Resolve(context.Background(), "tok", tenantID, userID.String())
	require.NoError(t, err)
	assert.Equal(t, "jo@acme.example", user.UserEmail)
	assert.Equal(t, userID, user.UserID)
	require.NotNil(t, user.Executions.Quota)
	assert.EqualValues(t, 100, *user.Executions.Quota)

	again, err := resolver.Resolve(context.Background(), "tok", tenantID, userID.String())
	require.NoError(t, err)
	assert.Same(t, user, again)
	assert.Equal(t, 1, hits)
}

func TestResolveErrorNotCached(t *testing.T) {
	tenantID := uuid.New()
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "nope", http.StatusForbidden)
			return
		}
		fmt.Fprintf(w, `{"tenantId": %q, "userId": %q, "userEmail": "x@y.z", "role": "User", "xpertlyExecutions": {}}`, tenantID, uuid.New())
	}))
	defer srv.Close()

	resolver, err := NewResolver(srv.Client(), srv.URL, 8, logging.Nop())
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "tok", tenantID, "u-1")
	assert.ErrorContains(t, err, "status 403")

	fail = false
	_, err = resolver.Resolve(context.Background(), "tok", tenantID, "u-1")
	assert.NoError(t, err)
}
