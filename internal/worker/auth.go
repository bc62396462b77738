package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	xerrors "xpertly/internal/errors"
	"xpertly/internal/integration"
)

// injectAuth attaches the vendor's credentials to the endpoint. Most vendors
// are a single header; DNAC and Viptela trade their credentials for a
// short-lived token first.
func injectAuth(ctx context.Context, inv *Invocation, e *Endpoint, integ integration.Integration) error {
	switch v := integ.(type) {
	case *integration.Meraki:
		e.AddHeader("X-Cisco-Meraki-API-Key", v.APIKey)
	case *integration.Jira:
		e.AddHeader("Authorization", "Basic "+basicToken(v.Username, v.APIKey))
	case *integration.Ansible:
		e.AddHeader("Authorization", "Basic "+basicToken(v.Username, v.Password))
	case *integration.Netbox:
		e.AddHeader("Authorization", "Token "+v.APIKey)
	case *integration.Avicenna:
		e.AddHeader("Authorization", "Bearer "+v.AuthToken)
	case *integration.OAuth:
		e.AddHeader("Authorization", "Bearer "+v.Token)
	case *integration.Splunk:
		e.AddHeader("Authorization", "Splunk "+v.HecToken)
	case *integration.Dnac:
		return injectDnacAuth(ctx, inv, e, v)
	case *integration.Viptela:
		return injectViptelaAuth(ctx, inv, e, v)
	default:
		return xerrors.NewPrepError("no credential scheme for integration type %q", integ.Kind())
	}
	return nil
}

func basicToken(username, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + secret))
}

// injectDnacAuth trades basic credentials for a DNAC session token and
// attaches it as x-auth-token.
func injectDnacAuth(ctx context.Context, inv *Invocation, e *Endpoint, d *integration.Dnac) error {
	endpoint := fmt.Sprintf("https://%s/dna/system/api/v1/auth/token", d.DnacHostname)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return xerrors.WrapPrep(err, "build dnac token request")
	}
	req.SetBasicAuth(d.Username, d.Password)

	resp, err := inv.deps.HTTP.Do(req)
	if err != nil {
		return xerrors.WrapPrep(err, "dnac token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.WrapPrep(err, "read dnac token response")
	}
	if resp.StatusCode != http.StatusOK {
		return xerrors.NewPrepError("dnac token endpoint returned status %d", resp.StatusCode)
	}

	var decoded struct {
		Token string `json:"Token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Token == "" {
		return xerrors.NewPrepError("dnac token response carries no token")
	}

	e.AddHeader("x-auth-token", decoded.Token)
	return nil
}

// injectViptelaAuth logs into vManage for a session cookie, then fetches the
// CSRF token bound to that session. A missing CSRF token is tolerated; older
// vManage releases do not issue one.
func injectViptelaAuth(ctx context.Context, inv *Invocation, e *Endpoint, v *integration.Viptela) error {
	loginURL := fmt.Sprintf("https://%s/j_security_check", v.VManageHostname)
	form := url.Values{}
	form.Set("j_username", v.Username)
	form.Set("j_password", v.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return xerrors.WrapPrep(err, "build vmanage login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := inv.deps.HTTP.Do(req)
	if err != nil {
		return xerrors.WrapPrep(err, "vmanage login failed")
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cookie := resp.Header.Get("Set-Cookie")
	if cookie == "" {
		return xerrors.NewPrepError("vmanage login returned no session cookie")
	}
	session := strings.SplitN(cookie, ";", 2)[0]

	tokenURL := fmt.Sprintf("https://%s/dataservice/client/token", v.VManageHostname)
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL, nil)
	if err != nil {
		return xerrors.WrapPrep(err, "build vmanage token request")
	}
	tokenReq.Header.Set("Cookie", session)

	tokenResp, err := inv.deps.HTTP.Do(tokenReq)
	if err != nil {
		return xerrors.WrapPrep(err, "vmanage token request failed")
	}
	defer tokenResp.Body.Close()
	tokenBody, err := io.ReadAll(tokenResp.Body)
	if err != nil {
		return xerrors.WrapPrep(err, "read vmanage token response")
	}

	e.AddHeader("Content-Type", "application/json")
	e.AddHeader("Cookie", session)
	if tokenResp.StatusCode == http.StatusOK {
		e.AddHeader("X-XSRF-TOKEN", string(tokenBody))
	}
	return nil
}
