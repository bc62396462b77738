package persist

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"xpertly/internal/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRunLogPostsEnvelope(t *testing.T) {
	tenantID := uuid.New()
	var gotPath, gotAuth string
	var envelope map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &envelope))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, logging.Nop())
	err := client.AppendRunLog(context.Background(), "tok", tenantID, map[string]any{"event": "worker_start"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/client/post_to_elastic", gotPath)
	assert.Equal(t, "tok", gotAuth)
	assert.Equal(t, "xpertly_worker_run_"+tenantID.String(), envelope["index"])
	payload := envelope["payload"].(map[string]any)
	assert.Equal(t, "worker_start", payload["event"])
}

func TestStoreAndFetchSuspended(t *testing.T) {
	runID := uuid.New()
	var stored map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/client/post_to_elastic":
			var envelope map[string]any
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &envelope))
			assert.Equal(t, "xpertly_handler_payload_"+runID.String(), envelope["index"])
			stored = envelope["payload"].(map[string]any)
			w.WriteHeader(http.StatusOK)
		case "/v1/client/get_handler_payload/" + runID.String():
			json.NewEncoder(w).Encode(stored)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, logging.Nop())
	require.NoError(t, client.StoreSuspended(context.Background(), "tok", runID, map[string]any{"runId": runID.String()}))

	raw, err := client.FetchSuspended(context.Background(), "tok", runID.String())
	require.NoError(t, err)

	var fetched map[string]any
	require.NoError(t, json.Unmarshal(raw, &fetched))
	assert.Equal(t, runID.String(), fetched["runId"])
}

func TestErrorsSurfaceStatusCodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, logging.Nop())
	err := client.AppendRunLog(context.Background(), "tok", uuid.New(), map[string]any{})
	assert.ErrorContains(t, err, "status 502")

	_, err = client.FetchSuspended(context.Background(), "tok", "some-run")
	assert.ErrorContains(t, err, "status 502")
}
