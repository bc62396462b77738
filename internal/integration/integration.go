// Package integration models vendor integrations and their lookup service.
//
// The set of vendors is closed: an integration document with an unknown
// integrationType is rejected when it is parsed, never at execution time.
package integration

import (
	"encoding/json"
	"fmt"
)

// Vendor kinds.
const (
	KindMeraki   = "meraki"
	KindAnsible  = "ansible"
	KindSplunk   = "splunk"
	KindDnac     = "dnac"
	KindViptela  = "viptela"
	KindJira     = "jira"
	KindNetbox   = "netbox"
	KindAvicenna = "avicenna"
	KindOAuth    = "oauth"
)

// Integration is one configured vendor connection.
type Integration interface {
	Kind() string
	// TemplateVars exposes every field for variable substitution, keyed the
	// way the document is stored (camelCase).
	TemplateVars() map[string]any
}

// Base carries the fields every integration document shares.
type Base struct {
	TenantID        string `json:"tenantId"`
	IntegrationType string `json:"integrationType"`
	IntegrationID   string `json:"integrationId"`
}

// Kind returns the vendor discriminator.
func (b Base) Kind() string { return b.IntegrationType }

func templateVars(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Meraki authenticates with a dashboard API key.
type Meraki struct {
	Base
	APIKey       string `json:"apiKey"`
	Organization string `json:"organization"`
}

func (m Meraki) TemplateVars() map[string]any { return templateVars(m) }

// Ansible authenticates with basic credentials against a tower host.
type Ansible struct {
	Base
	AnsibleHostname string `json:"ansibleHostname"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

func (a Ansible) TemplateVars() map[string]any { return templateVars(a) }

// Splunk authenticates with an HEC token.
type Splunk struct {
	Base
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	HecToken string `json:"hecToken"`
}

func (s Splunk) TemplateVars() map[string]any { return templateVars(s) }

// Dnac trades basic credentials for a short-lived token at task time.
type Dnac struct {
	Base
	DnacHostname string `json:"dnacHostname"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

func (d Dnac) TemplateVars() map[string]any { return templateVars(d) }

// Viptela logs into vManage for a session cookie and CSRF token at task time.
type Viptela struct {
	Base
	VManageHostname string `json:"vManageHostname"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

func (v Viptela) TemplateVars() map[string]any { return templateVars(v) }

// Jira authenticates with basic username/apiKey credentials.
type Jira struct {
	Base
	JiraHostname string `json:"jiraHostname"`
	Username     string `json:"username"`
	APIKey       string `json:"apiKey"`
}

func (j Jira) TemplateVars() map[string]any { return templateVars(j) }

// Netbox authenticates with a static API token.
type Netbox struct {
	Base
	NetboxHostname string `json:"netboxHostname"`
	APIKey         string `json:"apiKey"`
}

func (n Netbox) TemplateVars() map[string]any { return templateVars(n) }

// Avicenna reuses a platform bearer token.
type Avicenna struct {
	Base
	AuthToken string `json:"authToken"`
}

func (a Avicenna) TemplateVars() map[string]any { return templateVars(a) }

// OAuth carries a pre-issued bearer token.
type OAuth struct {
	Base
	Token string `json:"token"`
}

func (o OAuth) TemplateVars() map[string]any { return templateVars(o) }

// Parse decodes an integration document, dispatching on integrationType.
func Parse(raw []byte) (Integration, error) {
	var probe struct {
		IntegrationType string `json:"integrationType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode integration: %w", err)
	}

	decode := func(v Integration) (Integration, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s integration: %w", probe.IntegrationType, err)
		}
		return v, nil
	}

	switch probe.IntegrationType {
	case KindMeraki:
		return decode(&Meraki{})
	case KindAnsible:
		return decode(&Ansible{})
	case KindSplunk:
		return decode(&Splunk{})
	case KindDnac:
		return decode(&Dnac{})
	case KindViptela:
		return decode(&Viptela{})
	case KindJira:
		return decode(&Jira{})
	case KindNetbox:
		return decode(&Netbox{})
	case KindAvicenna:
		return decode(&Avicenna{})
	case KindOAuth:
		return decode(&OAuth{})
	case "":
		return nil, fmt.Errorf("integration document has no integrationType")
	default:
		return nil, fmt.Errorf("unknown integration type %q", probe.IntegrationType)
	}
}
