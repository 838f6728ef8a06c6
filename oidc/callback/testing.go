// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tacotsubo/authcode/oidc"
)

const (
	testClientID     = "test-client-id"
	testClientSecret = "test-client-secret"
	testRedirectURL  = "https://example.com/callback"
	testAuthCode     = "abc123"
)

// testSuccessFn is a test SuccessResponseFunc
func testSuccessFn(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("login successful"))
}

// testFailFn is a test ErrorResponseFunc
func testFailFn(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	if r != nil {
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(r)
		_, _ = w.Write(j)
		return
	}
	if e != nil {
		w.WriteHeader(http.StatusInternalServerError)
		j, _ := json.Marshal(&AuthenErrorResponse{
			Error:       "internal-callback-error",
			Description: e.Error(),
		})
		_, _ = w.Write(j)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	j, _ := json.Marshal(&AuthenErrorResponse{
		Error: "unknown-callback-error",
	})
	_, _ = w.Write(j)
}

// testStartProvider starts a TestProvider that accepts the test client and
// issues testAuthCode.
func testStartProvider(t *testing.T) *oidc.TestProvider {
	t.Helper()
	tp := oidc.StartTestProvider(t, 0)
	tp.SetClientCreds(testClientID, testClientSecret)
	tp.SetAllowedRedirectURIs([]string{testRedirectURL})
	tp.SetExpectedAuthCode(testAuthCode)
	return tp
}

// testNewProvider creates a new Provider for the TestProvider. This is
// helpful internally, but intentionally not exported.
func testNewProvider(t *testing.T, tp *oidc.TestProvider) *oidc.Provider {
	const op = "testNewProvider"
	t.Helper()
	require := require.New(t)
	require.NotNilf(tp, "%s: test provider is nil", op)

	c, err := oidc.NewConfig(
		tp.Addr(),
		testClientID,
		testClientSecret,
		testRedirectURL,
		oidc.WithSupportedSigningAlgs(oidc.ES256),
		oidc.WithProviderCA(tp.CACert()),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

// testNewChannel returns a CookieChannel with fixed keys.
func testNewChannel(t *testing.T, opt ...oidc.Option) *CookieChannel {
	t.Helper()
	ch, err := NewCookieChannel([]byte("0123456789abcdef0123456789abcdef"), []byte("fedcba9876543210"), opt...)
	require.NoError(t, err)
	return ch
}

// testLogin runs the login handler and plays the user agent at the provider.
// It returns the cookies set by the login and the url the provider
// redirected back to.
func testLogin(t *testing.T, tp *oidc.TestProvider, login http.HandlerFunc) ([]*http.Cookie, *url.URL) {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(http.StatusFound, rec.Code)
	authURL := rec.Header().Get("Location")
	require.NotEmpty(authURL)

	resp, err := tp.HTTPClient().Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	cb, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return rec.Result().Cookies(), cb
}

// testCallbackRequest builds the user agent's request to the callback.
func testCallbackRequest(cookies []*http.Cookie, cb *url.URL) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/callback?"+cb.RawQuery, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}
