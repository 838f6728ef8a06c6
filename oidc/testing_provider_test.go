// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	port := func() int {
		addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
		require.NoError(err)
		l, err := net.ListenTCP("tcp", addr)
		require.NoError(err)
		defer l.Close()
		return l.Addr().(*net.TCPAddr).Port
	}()

	tp := StartTestProvider(t, port)
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	assert.Equal(strconv.Itoa(port), u.Port())

	resp, err := tp.HTTPClient().Get(tp.Addr() + "/certs")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}

func TestTestProvider_discovery(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t, 0)
	tp.OmitEndSessionEndpoint()
	tp.SetSupportedChallengeMethods()

	resp, err := tp.HTTPClient().Get(tp.Addr() + WellKnownPath)
	require.NoError(err)
	defer resp.Body.Close()
	var md map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&md))
	assert.Equal(tp.Addr(), md["issuer"])
	assert.NotContains(md, "end_session_endpoint")
	assert.NotContains(md, "code_challenge_methods_supported")
	assert.Equal(1, tp.DiscoveryRequests())
}

func TestTestProvider_token(t *testing.T) {
	t.Parallel()
	tp := StartTestProvider(t, 0)
	tp.SetClientCreds("alice", "bob")
	tp.SetAllowedRedirectURIs([]string{"https://example.com/callback"})
	tp.SetExpectedAuthCode("abc123")
	v, err := NewCodeVerifier()
	require.NoError(t, err)
	tp.SetPKCEChallenge(v.Challenge())

	form := func(modify func(url.Values)) url.Values {
		f := url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {"alice"},
			"client_secret": {"bob"},
			"redirect_uri":  {"https://example.com/callback"},
			"code":          {"abc123"},
			"code_verifier": {v.Verifier()},
		}
		modify(f)
		return f
	}
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantError  string
	}{
		{name: "bad-grant", form: form(func(f url.Values) { f.Set("grant_type", "implicit") }), wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "bad-client", form: form(func(f url.Values) { f.Set("client_secret", "eve") }), wantStatus: http.StatusUnauthorized, wantError: "invalid_client"},
		{name: "bad-redirect", form: form(func(f url.Values) { f.Set("redirect_uri", "https://evil.com") }), wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "bad-code", form: form(func(f url.Values) { f.Set("code", "nope") }), wantStatus: http.StatusBadRequest, wantError: "invalid_grant"},
		{name: "bad-verifier", form: form(func(f url.Values) { f.Set("code_verifier", strings.Repeat("a", 43)) }), wantStatus: http.StatusBadRequest, wantError: "invalid_grant"},
		{name: "ok", form: form(func(url.Values) {}), wantStatus: http.StatusOK},
		{name: "single-use", form: form(func(url.Values) {}), wantStatus: http.StatusBadRequest, wantError: "invalid_grant"},
	}
	// subtests run in order; "single-use" depends on "ok"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			resp, err := tp.HTTPClient().PostForm(tp.Addr()+"/token", tt.form)
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(tt.wantStatus, resp.StatusCode)
			var body map[string]interface{}
			require.NoError(json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantError != "" {
				assert.Equal(tt.wantError, body["error"])
				return
			}
			assert.NotEmpty(body["access_token"])
			assert.NotEmpty(body["id_token"])
			assert.Equal("Bearer", body["token_type"])
		})
	}
	assert.Equal(t, len(tests), tp.TokenRequests())
}
