// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tacotsubo/authcode/oidc"
	"github.com/tacotsubo/authcode/oidc/callback"
)

const (
	testClientID     = "test-client-id"
	testClientSecret = "test-client-secret"
	testRedirectURL  = "https://example.com/callback"
)

func testServer(t *testing.T) (*oidc.TestProvider, *server) {
	t.Helper()
	tp := oidc.StartTestProvider(t, 0)
	tp.SetClientCreds(testClientID, testClientSecret)
	tp.SetAllowedRedirectURIs([]string{testRedirectURL})
	tp.SetExpectedAuthCode("abc123")
	return tp, testNewServer(t, tp)
}

// testNewServer starts a server for tp. Servers share their cookie keys, like
// replicas behind a load balancer.
func testNewServer(t *testing.T, tp *oidc.TestProvider) *server {
	t.Helper()
	cfg := &Config{
		Issuer:                tp.Addr(),
		ClientID:              testClientID,
		ClientSecret:          testClientSecret,
		RedirectURL:           testRedirectURL,
		PostLogoutRedirectURL: "https://example.com/",
		Scopes:                []string{"profile"},
		AuthMethod:            string(oidc.ClientSecretPost),
		SigningAlgs:           []string{string(oidc.ES256)},
		ProviderCA:            tp.CACert(),
		RequestTTL:            time.Minute,
		CookieHashKey:         "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=",
		CookieBlockKey:        "ZmVkY2JhOTg3NjU0MzIxMGZlZGNiYTk4NzY1NDMyMTA=",
	}
	s, err := newServer(cfg, hclog.NewNullLogger())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// testConnect drives /connect and the provider's authorization endpoint and
// returns the login cookies and the callback url the provider redirected to.
func testConnect(t *testing.T, tp *oidc.TestProvider, s *server) ([]*http.Cookie, *url.URL) {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connect", nil))
	require.Equal(http.StatusFound, rec.Code)

	resp, err := tp.HTTPClient().Get(rec.Header().Get("Location"))
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	cb, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return rec.Result().Cookies(), cb
}

func testCallback(s *server, cookies []*http.Cookie, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/callback?"+query, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func testStatus(t *testing.T, s *server) map[string]interface{} {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func Test_serverSignInSignOut(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp, s := testServer(t)

	assert.Empty(testStatus(t, s))

	cookies, cb := testConnect(t, tp, s)
	rec := testCallback(s, cookies, cb.RawQuery)
	require.Equal(http.StatusOK, rec.Code)
	assert.Equal("application/json", rec.Header().Get("Content-Type"))
	assert.Equal("no-store", rec.Header().Get("Cache-Control"))

	form, _ := tp.LastTokenRequest()
	assert.Equal("abc123", form.Get("code"))
	assert.NotEmpty(form.Get("code_verifier"))

	var got map[string]interface{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	tk, ok := s.provider.Session().Get()
	require.True(ok)
	assert.Equal(string(tk.AccessToken()), got["access_token"])
	assert.Equal(string(tk.IDToken()), got["id_token"])
	assert.Equal("Bearer", got["token_type"])
	assert.NotEmpty(got["access_token"])
	assert.NotEmpty(got["expiry"])
	assert.NotContains(rec.Body.String(), "REDACTED")
	assert.NotContains(rec.Body.String(), "abc123")

	status := testStatus(t, s)
	assert.Equal(got["access_token"], status["access_token"])
	assert.Equal(got["id_token"], status["id_token"])
	assert.Equal("Bearer", status["token_type"])
	assert.Equal(got["expiry"], status["expiry"])
	assert.Equal(false, status["expired"])
	claims, ok := status["claims"].(map[string]interface{})
	require.True(ok)
	assert.Equal("alice@example.com", claims["sub"])

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/disconnect", nil))
	require.Equal(http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(err)
	assert.Equal("/logout", loc.Path)
	assert.Equal("https://example.com/", loc.Query().Get("post_logout_redirect_uri"))
	assert.NotEmpty(loc.Query().Get("id_token_hint"))

	assert.Empty(testStatus(t, s))
}

func Test_serverCallbackErrors(t *testing.T) {
	t.Parallel()
	// pick returns the cookie called name from cookies.
	pick := func(cookies []*http.Cookie, name string) *http.Cookie {
		for _, c := range cookies {
			if c.Name == name {
				return c
			}
		}
		return nil
	}
	tests := []struct {
		name string
		// modify changes the callback the user agent sends, and may send it to
		// another server.
		modify            func(t *testing.T, tp *oidc.TestProvider, s *server, cookies []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values)
		wantStatus        int
		wantTokenRequests int
	}{
		{
			name: "no-cookies",
			modify: func(_ *testing.T, _ *oidc.TestProvider, s *server, _ []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				return s, nil, q
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "state-mismatch",
			modify: func(_ *testing.T, _ *oidc.TestProvider, s *server, c []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				q.Set("state", "st_forged")
				return s, c, q
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "unknown-state",
			modify: func(t *testing.T, tp *oidc.TestProvider, _ *server, c []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				// a server that never issued the state
				return testNewServer(t, tp), c, q
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "verifier-mismatch",
			modify: func(t *testing.T, tp *oidc.TestProvider, s *server, c []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				other, _ := testConnect(t, tp, s)
				return s, []*http.Cookie{
					pick(c, callback.DefaultStateCookie),
					pick(other, callback.DefaultVerifierCookie),
				}, q
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "provider-error",
			modify: func(_ *testing.T, _ *oidc.TestProvider, s *server, c []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				return s, c, url.Values{"state": {q.Get("state")}, "error": {"access_denied"}}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bad-code",
			modify: func(_ *testing.T, _ *oidc.TestProvider, s *server, c []*http.Cookie, q url.Values) (*server, []*http.Cookie, url.Values) {
				q.Set("code", "wrong")
				return s, c, q
			},
			wantStatus:        http.StatusUnauthorized,
			wantTokenRequests: 1,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			tp, s := testServer(t)
			cookies, cb := testConnect(t, tp, s)
			target, cookies, q := tt.modify(t, tp, s, cookies, cb.Query())
			rec := testCallback(target, cookies, q.Encode())
			assert.Equal(tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				// every failed check looks the same to the caller
				assert.Equal("authorization failed\n", rec.Body.String())
			}
			assert.Equal(tt.wantTokenRequests, tp.TokenRequests())
			assert.Empty(testStatus(t, target))
		})
	}
}

func Test_serverReplay(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp, s := testServer(t)
	cookies, cb := testConnect(t, tp, s)
	rec := testCallback(s, cookies, cb.RawQuery)
	require.Equal(http.StatusOK, rec.Code)
	n := tp.TokenRequests()

	rec = testCallback(s, cookies, cb.RawQuery)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	assert.Equal(n, tp.TokenRequests())
}

func Test_serverDiscoveryFailure(t *testing.T) {
	t.Parallel()
	tp, s := testServer(t)
	tp.OmitTokenEndpoint()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func Test_versionCmd(t *testing.T) {
	assert := assert.New(t)
	var out strings.Builder
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal("authcode dev\n", out.String())
}
