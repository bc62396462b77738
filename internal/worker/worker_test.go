package worker

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"xpertly/internal/asset"
	"xpertly/internal/integration"
	"xpertly/internal/logging"
	"xpertly/internal/persist"
	"xpertly/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway plays the elastic gateway: it records run log events and
// serves suspended payloads back.
type fakeGateway struct {
	mu            sync.Mutex
	logs          []WorkerLog
	suspended     map[string]json.RawMessage
	failSuspended bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{suspended: map[string]json.RawMessage{}}
}

func (g *fakeGateway) handle(mux *http.ServeMux) {
	mux.HandleFunc("/v1/client/post_to_elastic", func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Index   string          `json:"index"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		switch {
		case strings.HasPrefix(envelope.Index, "xpertly_worker_run_"):
			var entry WorkerLog
			if err := json.Unmarshal(envelope.Payload, &entry); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			g.logs = append(g.logs, entry)
		case strings.HasPrefix(envelope.Index, "xpertly_handler_payload_"):
			if g.failSuspended {
				http.Error(w, "elastic unavailable", http.StatusServiceUnavailable)
				return
			}
			runID := strings.TrimPrefix(envelope.Index, "xpertly_handler_payload_")
			g.suspended[runID] = envelope.Payload
		}
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/v1/client/get_handler_payload/", func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/v1/client/get_handler_payload/")
		g.mu.Lock()
		payload, ok := g.suspended[runID]
		g.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	})
}

func (g *fakeGateway) events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.logs))
	for i, entry := range g.logs {
		out[i] = string(entry.Event)
	}
	return out
}

func (g *fakeGateway) lastSuspended(t *testing.T, runID uuid.UUID) json.RawMessage {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	payload, ok := g.suspended[runID.String()]
	require.True(t, ok, "no suspended payload for run %s", runID)
	return payload
}

// testEnv wires one httptest server playing gateway, core API and vendor
// endpoints at once.
type testEnv struct {
	srv     *httptest.Server
	gateway *fakeGateway
	deps    *Deps

	mu           sync.Mutex
	vendorBodies []string
	vendorPaths  []string
	vendorAuth   []string

	integrations map[string]string
	tagObjects   map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		gateway:      newFakeGateway(),
		integrations: map[string]string{},
		tagObjects:   map[string]string{},
	}

	mux := http.NewServeMux()
	env.gateway.handle(mux)
	mux.HandleFunc("/api/tenants/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(parts) == 6 && parts[3] == "integrations":
			doc, ok := env.integrations[parts[4]+"/"+parts[5]]
			if !ok {
				http.NotFound(w, r)
				return
			}
			fmt.Fprint(w, doc)
		case len(parts) == 4 && parts[3] == "assets-by-tags":
			tag := r.URL.Query().Get("tags")
			doc, ok := env.tagObjects[tag]
			if !ok {
				fmt.Fprint(w, `{"devices":{},"assets":{}}`)
				return
			}
			fmt.Fprint(w, doc)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/vendor/", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		env.mu.Lock()
		env.vendorBodies = append(env.vendorBodies, string(raw))
		env.vendorPaths = append(env.vendorPaths, r.URL.String())
		env.vendorAuth = append(env.vendorAuth, r.Header.Get("Authorization"))
		env.mu.Unlock()

		switch r.URL.Path {
		case "/vendor/items":
			fmt.Fprint(w, `{"items":[{"name":"alpha"},{"name":"beta"}],"total":2}`)
		case "/vendor/fail":
			// not JSON: parsing the response is what fails the task
			http.Error(w, "upstream gateway timeout", http.StatusGatewayTimeout)
		default:
			fmt.Fprint(w, `{"ok":true}`)
		}
	})

	env.srv = httptest.NewServer(mux)
	t.Cleanup(env.srv.Close)

	client := env.srv.Client()
	client.Transport = &vendorRewrite{
		target: strings.TrimPrefix(env.srv.URL, "http://"),
		next:   client.Transport,
	}

	logger := logging.Nop()
	env.deps = &Deps{
		HTTP:         client,
		Persist:      persist.NewClient(client, env.srv.URL, logger),
		Integrations: integration.NewClient(client, env.srv.URL, logger),
		Assets:       asset.NewClient(client, env.srv.URL, logger),
		Signer:       token.NewSigner("test secret", time.Hour),
		Logger:       logger,
	}
	return env
}

// vendorHost is the hostname task documents point at. The test transport
// rewrites it to the local listener, keeping targetUrls free of literal
// ports, which path parameter translation would rewrite into references.
const vendorHost = "vendor.test"

type vendorRewrite struct {
	target string
	next   http.RoundTripper
}

func (rt *vendorRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == vendorHost {
		clone := req.Clone(req.Context())
		clone.URL.Host = rt.target
		req = clone
	}
	return rt.next.RoundTrip(req)
}

func (env *testEnv) vendorCalls() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]string(nil), env.vendorPaths...)
}

func (env *testEnv) addOAuthIntegration(id, bearer string) {
	env.integrations["oauth/"+id] = fmt.Sprintf(
		`{"tenantId":"t","integrationType":"oauth","integrationId":%q,"token":%q}`, id, bearer)
}

func mustWorker(t *testing.T, doc string) *Worker {
	t.Helper()
	var cfg WorkerConfig
	require.NoError(t, json.Unmarshal([]byte(doc), &cfg))
	w, err := FromConfig(&cfg)
	require.NoError(t, err)
	return w
}

func newTestInvocation(t *testing.T, env *testEnv, w *Worker, tag string) *Invocation {
	t.Helper()
	inv, err := NewInvocation(w, w.TenantID, "jo@acme.example", uuid.New(), "Bearer trigger-token", uuid.New(), tag, env.deps)
	require.NoError(t, err)
	return inv
}

func TestFromConfigBuildsGraph(t *testing.T) {
	doc := fmt.Sprintf(`{
		"name": "Two Step", "id": %q, "tenantId": %q,
		"type": "automation", "description": "",
		"global": {"GLOBAL:region": "emea"}, "custom": {"port": "8443"},
		"tasks": [
			{"name": "First", "reactId": "n1", "type": "webhook", "vendor": "custom",
			 "fields": {"method": "POST", "targetUrl": "https://hooks.example/x",
			            "queryParams": {"limit": {"value": "5"}}},
			 "next": {"true": "n2", "false": null}},
			{"name": "Second", "reactId": "n2", "type": "webhook", "vendor": "custom",
			 "fields": {"method": "GET", "targetUrl": "https://hooks.example/y"},
			 "next": {"true": null, "false": null}}
		]
	}`, uuid.New(), uuid.New())

	w := mustWorker(t, doc)
	assert.Equal(t, "n1", w.Start)
	assert.Len(t, w.Tasks, 2)
	assert.Equal(t, KindWebhook, w.Tasks["n1"].Handler.Kind)
	assert.Equal(t, map[string]string{"limit": "5"}, w.Tasks["n1"].Handler.Endpoint.QueryParams)
	assert.Equal(t, "emea", w.Global["GLOBAL:region"])
}

func TestFromConfigRejectsBadDocuments(t *testing.T) {
	base := `{"name": "W", "id": %q, "tenantId": %q, "tasks": %s}`
	cases := map[string]struct {
		tasks string
		want  string
	}{
		"no tasks": {
			tasks: `[]`,
			want:  "has no tasks",
		},
		"endpoint without integration": {
			tasks: `[{"name":"A","reactId":"n1","type":"endpoint","vendor":"meraki",
			          "fields":{"method":"GET","targetUrl":"https://x/y"}}]`,
			want: "must have an integration",
		},
		"endpoint without category": {
			tasks: `[{"name":"A","reactId":"n1","integrationId":"i1",
			          "fields":{"method":"GET","targetUrl":"https://x/y"}}]`,
			want: "has no category",
		},
		"unknown fields shape": {
			tasks: `[{"name":"A","reactId":"n1","type":"endpoint","fields":{"mystery":1}}]`,
			want:  "unrecognized fields shape",
		},
		"duplicate react ids": {
			tasks: `[{"name":"A","reactId":"n1","type":"webhook","fields":{"method":"GET","targetUrl":"https://x"}},
			         {"name":"B","reactId":"n1","type":"webhook","fields":{"method":"GET","targetUrl":"https://y"}}]`,
			want: "duplicate react id",
		},
		"dangling next": {
			tasks: `[{"name":"A","reactId":"n1","type":"webhook",
			          "fields":{"method":"GET","targetUrl":"https://x"},
			          "next":{"true":"ghost","false":null}}]`,
			want: "unknown next task",
		},
		"wait on non-endpoint": {
			tasks: `[{"name":"A","reactId":"n1","needsToWait":true,
			          "fields":{"expression":[]}}]`,
			want: "only endpoint tasks suspend",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := fmt.Sprintf(base, uuid.New(), uuid.New(), tc.tasks)
			var cfg WorkerConfig
			require.NoError(t, json.Unmarshal([]byte(doc), &cfg))
			_, err := FromConfig(&cfg)
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestTaskCloneKeepsResolvedIntegration(t *testing.T) {
	task := &Task{
		Name:    "A",
		ReactID: "n1",
		Handler: Handler{Kind: KindEndpoint, Endpoint: &Endpoint{
			TargetURL: "https://x/y",
			integ: &integration.OAuth{
				Base:  integration.Base{IntegrationType: "oauth"},
				Token: "tok",
			},
		}},
	}
	clone := task.Clone()
	require.NotSame(t, task, clone)
	require.NotNil(t, clone.Handler.Endpoint.integ)
	assert.Equal(t, "oauth", clone.Handler.Endpoint.integ.Kind())
}
