// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/stretchr/testify/require"
	"github.com/tacotsubo/authcode/oidc/clientassertion"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier. It serves discovery, /auth, /token (with
// PKCE and single use codes), /certs and /logout.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks         *jose.JSONWebKeySet
	replySubject string

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	expectedAuthCode    string
	expectedAuthNonce   string
	pkceChallenge       string
	authNonce           string
	redeemedCodes       map[string]bool
	challengeMethods    []string
	customClaims        map[string]interface{}
	omitIDToken         bool
	omitEndSession      bool
	omitTokenEndpoint   bool
	discoveryDelay      time.Duration
	clientAssertionKey  crypto.PublicKey

	discoveryRequests int
	tokenRequests     int
	lastTokenRequest  url.Values
	lastTokenAuth     string

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t *testing.T
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider. A port of zero picks
// any free port.
func StartTestProvider(t *testing.T, port int) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		allowedRedirectURIs: []string{
			"https://example.com",
		},
		replySubject:     "alice@example.com",
		redeemedCodes:    map[string]bool{},
		challengeMethods: []string{string(S256)},
		t:                t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)

	p.jwks = TestJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptestNewUnstartedServerWithPort(t, p, port)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows. An empty secret means a public client.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token. Setting it again allows the code to be
// redeemed again.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
	delete(p.redeemedCodes, code)
}

// SetExpectedAuthNonce configures the nonce value required for /auth and
// embedded in the id_token.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetPKCEChallenge configures the S256 code challenge /token verifies the
// code_verifier against. /auth sets it from the request as well.
func (p *TestProvider) SetPKCEChallenge(challenge string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pkceChallenge = challenge
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of "https://example.com" is
// used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSupportedChallengeMethods configures code_challenge_methods_supported in
// the discovery document. None omits it.
func (p *TestProvider) SetSupportedChallengeMethods(methods ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.challengeMethods = methods
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetClientAssertionKey sets the public key that private_key_jwt client
// assertions are verified with. client_secret_jwt assertions are verified
// with the client secret.
func (p *TestProvider) SetClientAssertionKey(pub crypto.PublicKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientAssertionKey = pub
}

// SetDiscoveryDelay delays every discovery response.
func (p *TestProvider) SetDiscoveryDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryDelay = d
}

// OmitIDTokens makes the /token endpoint not return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitEndSessionEndpoint removes end_session_endpoint from the discovery
// document.
func (p *TestProvider) OmitEndSessionEndpoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitEndSession = true
}

// OmitTokenEndpoint removes token_endpoint from the discovery document.
func (p *TestProvider) OmitTokenEndpoint() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitTokenEndpoint = true
}

// DiscoveryRequests returns how many times the discovery document was served.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// TokenRequests returns how many requests /token received.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// LastTokenRequest returns the form of the last /token request and the
// client id sent with http basic auth, if any.
func (p *TestProvider) LastTokenRequest() (url.Values, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTokenRequest, p.lastTokenAuth
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the test provider and
// doesn't follow redirects, like a user agent inspecting them.
func (p *TestProvider) HTTPClient() *http.Client {
	c := p.httpServer.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// SigningKeys returns the test provider's pem-encoded keys used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

// verifyClientAssertion checks a client_secret_jwt or private_key_jwt
// assertion. The caller must hold the lock.
func (p *TestProvider) verifyClientAssertion(clientID string, form url.Values) error {
	if form.Get("client_assertion_type") != clientassertion.JWTTypeParam {
		return fmt.Errorf("unexpected client_assertion_type")
	}
	tok, err := jwt.ParseSigned(form.Get("client_assertion"), []jose.SignatureAlgorithm{jose.RS256, jose.HS256})
	if err != nil {
		return fmt.Errorf("unable to parse client_assertion: %w", err)
	}
	var key interface{} = []byte(p.clientSecret)
	if tok.Headers[0].Algorithm == string(jose.RS256) {
		if p.clientAssertionKey == nil {
			return fmt.Errorf("no client assertion key")
		}
		key = p.clientAssertionKey
	}
	var claims jwt.Claims
	if err := tok.Claims(key, &claims); err != nil {
		return fmt.Errorf("client_assertion signature is invalid: %w", err)
	}
	return claims.Validate(jwt.Expected{
		Issuer:      clientID,
		Subject:     clientID,
		AnyAudience: jwt.Audience{p.Addr() + "/token"},
		Time:        time.Now(),
	})
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path == WellKnownPath {
		p.mu.Lock()
		delay := p.discoveryDelay
		p.mu.Unlock()
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case WellKnownPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.discoveryRequests++

		reply := struct {
			Issuer                        string   `json:"issuer"`
			AuthEndpoint                  string   `json:"authorization_endpoint"`
			TokenEndpoint                 string   `json:"token_endpoint,omitempty"`
			JWKSURI                       string   `json:"jwks_uri"`
			EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
			CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
			IDTokenSigningAlgs            []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:                        p.Addr(),
			AuthEndpoint:                  p.Addr() + "/auth",
			TokenEndpoint:                 p.Addr() + "/token",
			JWKSURI:                       p.Addr() + "/certs",
			EndSessionEndpoint:            p.Addr() + "/logout",
			CodeChallengeMethodsSupported: p.challengeMethods,
			IDTokenSigningAlgs:            []string{string(ES256)},
		}
		if p.omitEndSession {
			reply.EndSessionEndpoint = ""
		}
		if p.omitTokenEndpoint {
			reply.TokenEndpoint = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/auth":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		switch {
		case qv.Get("response_type") != "code":
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		case qv.Get("client_id") != p.clientID:
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		case qv.Get("code_challenge_method") != string(S256) || qv.Get("code_challenge") == "":
			p.writeAuthErrorResponse(w, req, "invalid_request", "PKCE S256 is required")
			return
		case p.expectedAuthCode == "":
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		nonce := qv.Get("nonce")
		if p.expectedAuthNonce != "" && p.expectedAuthNonce != nonce {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}
		p.pkceChallenge = qv.Get("code_challenge")
		p.authNonce = nonce

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

	case "/certs":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)

	case "/token":
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := req.ParseForm(); err != nil {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "unable to parse form")
			return
		}
		p.tokenRequests++
		p.lastTokenRequest = req.PostForm
		p.lastTokenAuth = ""

		clientID, clientSecret, basic := req.BasicAuth()
		switch {
		case basic:
			p.lastTokenAuth = clientID
		case req.PostForm.Has("client_assertion"):
			clientID = req.PostForm.Get("client_id")
			if err := p.verifyClientAssertion(clientID, req.PostForm); err != nil {
				_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", err.Error())
				return
			}
			clientSecret = p.clientSecret
		default:
			clientID, clientSecret = req.PostForm.Get("client_id"), req.PostForm.Get("client_secret")
		}

		switch {
		case req.PostForm.Get("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case clientID != p.clientID || clientSecret != p.clientSecret:
			_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
			return
		case !strutil.StrListContains(p.allowedRedirectURIs, req.PostForm.Get("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.PostForm.Get("code") != p.expectedAuthCode || p.redeemedCodes[p.expectedAuthCode]:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}
		if p.pkceChallenge != "" {
			challenge, err := CreateCodeChallenge(S256, req.PostForm.Get("code_verifier"))
			if err != nil || challenge != p.pkceChallenge {
				_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
				return
			}
		}
		p.redeemedCodes[p.expectedAuthCode] = true

		nonce := p.authNonce
		if p.expectedAuthNonce != "" {
			nonce = p.expectedAuthNonce
		}
		now := time.Now()
		stdClaims := jwt.Claims{
			Subject:   p.replySubject,
			Issuer:    p.Addr(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(now.Add(5 * time.Minute)),
			Audience:  jwt.Audience{p.clientID},
		}
		privateClaims := map[string]interface{}{
			"nonce": nonce,
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}
		jwtData := TestSignJWT(p.t, p.ecdsaPrivateKey, stdClaims, privateClaims)

		reply := struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int    `json:"expires_in"`
			IDToken      string `json:"id_token,omitempty"`
		}{
			AccessToken:  jwtData,
			TokenType:    "Bearer",
			RefreshToken: "refresh-" + p.expectedAuthCode,
			ExpiresIn:    3600,
			IDToken:      jwtData,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		_ = p.writeJSON(w, &reply)

	case "/logout":
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	if port == 0 {
		return httptest.NewUnstartedServer(handler)
	}
	require := require.New(t)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
