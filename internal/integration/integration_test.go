package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"xpertly/internal/logging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDispatchesOnIntegrationType(t *testing.T) {
	raw := []byte(`{
		"tenantId": "t-1",
		"integrationType": "meraki",
		"integrationId": "i-1",
		"apiKey": "secret",
		"organization": "701665"
	}`)

	integ, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, KindMeraki, integ.Kind())

	meraki, ok := integ.(*Meraki)
	require.True(t, ok)
	assert.Equal(t, "secret", meraki.APIKey)
	assert.Equal(t, "701665", meraki.Organization)
}

func TestParseRejectsUnknownVendor(t *testing.T) {
	_, err := Parse([]byte(`{"integrationType": "fortinet"}`))
	assert.ErrorContains(t, err, "unknown integration type")

	_, err = Parse([]byte(`{"apiKey": "x"}`))
	assert.ErrorContains(t, err, "no integrationType")
}

func TestParseAllVendors(t *testing.T) {
	cases := map[string]string{
		KindAnsible:  `{"integrationType":"ansible","ansibleHostname":"h","username":"u","password":"p"}`,
		KindSplunk:   `{"integrationType":"splunk","hostname":"h","port":"8088","hecToken":"t"}`,
		KindDnac:     `{"integrationType":"dnac","dnacHostname":"h","port":"443","username":"u","password":"p"}`,
		KindViptela:  `{"integrationType":"viptela","vManageHostname":"h","username":"u","password":"p"}`,
		KindJira:     `{"integrationType":"jira","jiraHostname":"h","username":"u","apiKey":"k"}`,
		KindNetbox:   `{"integrationType":"netbox","netboxHostname":"h","apiKey":"k"}`,
		KindAvicenna: `{"integrationType":"avicenna","authToken":"t"}`,
		KindOAuth:    `{"integrationType":"oauth","token":"t"}`,
	}
	for kind, doc := range cases {
		integ, err := Parse([]byte(doc))
		require.NoError(t, err, kind)
		assert.Equal(t, kind, integ.Kind())
	}
}

func TestTemplateVarsExposeDocumentFields(t *testing.T) {
	integ, err := Parse([]byte(`{"tenantId":"t","integrationType":"meraki","integrationId":"i","apiKey":"k","organization":"701665"}`))
	require.NoError(t, err)

	vars := integ.TemplateVars()
	assert.Equal(t, "701665", vars["organization"])
	assert.Equal(t, "meraki", vars["integrationType"])
	assert.Equal(t, "k", vars["apiKey"])
}

func TestClientLookup(t *testing.T) {
	tenantID := uuid.New()
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"integrationType":"netbox","netboxHostname":"nb","apiKey":"k"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, logging.Nop())
	integ, err := client.Lookup(context.Background(), "tok-123", tenantID, "netbox", "i-5")
	require.NoError(t, err)

	assert.Equal(t, "/api/tenants/"+tenantID.String()+"/integrations/netbox/i-5", gotPath)
	assert.Equal(t, "tok-123", gotAuth)
	assert.Equal(t, KindNetbox, integ.Kind())
}

func TestClientLookupNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, logging.Nop())
	_, err := client.Lookup(context.Background(), "tok", uuid.New(), "meraki", "missing")
	assert.ErrorContains(t, err, "status 404")
}
