// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// CallbackParams are the query parameters the provider sends to the
// redirect URL.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthResponse
// and https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	ErrorURI         string
}

// CallbackParamsFromQuery reads CallbackParams from a callback's query.
func CallbackParamsFromQuery(q url.Values) CallbackParams {
	return CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		ErrorURI:         q.Get("error_uri"),
	}
}

// BuildAuthorizationRequest creates a new Request and the provider URL the
// user agent should be redirected to. The URL carries the client id, redirect
// URL, scopes ("openid" first), the S256 code challenge, state and nonce. It
// performs no I/O and stores nothing; see Provider.AuthURL.
//
// Scopes, audience and resource default to the registration's.
//
// Supported options:
//   - WithScopes
//   - WithAudience
//   - WithResource
//   - WithNow
//   - WithPKCE
func BuildAuthorizationRequest(c *ClientRegistration, expireIn time.Duration, opt ...Option) (string, *Request, error) {
	const op = "BuildAuthorizationRequest"
	if c == nil {
		return "", nil, fmt.Errorf("%s: client registration is nil: %w", op, ErrNilParameter)
	}
	if c.metadata == nil {
		return "", nil, fmt.Errorf("%s: client registration has no provider metadata: %w", op, ErrNilParameter)
	}
	opts := getReqOpts(opt...)
	scopes := opts.withScopes
	if len(scopes) == 0 {
		scopes = c.Scopes
	}
	audience := opts.withAudience
	if audience == "" {
		audience = c.Audience
	}
	resource := opts.withResource
	if resource == "" {
		resource = c.Resource
	}

	r, err := NewRequest(expireIn, c.RedirectURL,
		WithScopes(scopes...),
		WithAudience(audience),
		WithResource(resource),
		WithNow(opts.withNowFunc),
		WithPKCE(opts.withVerifier),
	)
	if err != nil {
		return "", nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	challenge, err := CreateCodeChallenge(r.PKCEVerifier().Method(), r.PKCEVerifier().Verifier())
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	authCodeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(r.PKCEVerifier().Method())),
		oidc.Nonce(r.Nonce()),
	}
	if r.Audience() != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("audience", r.Audience()))
	}
	if r.Resource() != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("resource", r.Resource()))
	}
	return c.oauth2Config(r.Scopes()).AuthCodeURL(r.State(), authCodeOpts...), r, nil
}

// AuthURL builds an authorization request with the provider's client
// registration and stores it in the provider's RequestStore. The caller must
// keep the returned Request's state and PKCE verifier (see
// callback.CorrelationChannel) and redirect the user agent to the URL.
//
// Supported options: the same as BuildAuthorizationRequest.
func (p *Provider) AuthURL(ctx context.Context, opt ...Option) (string, *Request, error) {
	const op = "Provider.AuthURL"
	c, err := p.Client(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	authURL, r, err := BuildAuthorizationRequest(c, p.requestTTL, append([]Option{WithNow(p.nowFunc)}, opt...)...)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := p.requests.Add(ctx, r); err != nil {
		return "", nil, fmt.Errorf("%s: unable to store request: %w", op, err)
	}
	p.logger.Debug("authorization request issued", "request_id", r.ID())
	return authURL, r, nil
}

// CompleteAuthorization finishes an authorization code flow: it checks the
// callback against the state and PKCE verifier saved when the request was
// issued, exchanges the code and stores the resulting Token in the provider's
// SessionStore.
//
// Errors wrap one of ErrMissingBinding, ErrStateMismatch or ErrCodeExchange.
// A state that was never issued is a mismatch, the same as a forged one. An
// error response from the provider also wraps ErrLoginFailed. The code is never exchanged when the state or verifier
// don't match, or when the request was already consumed.
func (p *Provider) CompleteAuthorization(ctx context.Context, params CallbackParams, verifier, state string) (*Token, error) {
	const op = "Provider.CompleteAuthorization"
	if verifier == "" || state == "" {
		return nil, fmt.Errorf("%s: no verifier or state for the callback: %w", op, ErrMissingBinding)
	}
	if !constantTimeEqual(params.State, state) {
		p.logger.Warn("callback state does not match the authorization request")
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}

	r, err := p.requests.Consume(ctx, state)
	switch {
	case err == nil:
	case errors.Is(err, ErrRequestConsumed):
		p.logger.Warn("authorization request replayed")
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCodeExchange, err)
	case errors.Is(err, ErrNotFound):
		p.logger.Warn("callback state was not issued by this provider")
		return nil, fmt.Errorf("%s: %w: %w", op, ErrStateMismatch, err)
	case errors.Is(err, ErrExpiredRequest):
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMissingBinding, err)
	default:
		return nil, fmt.Errorf("%s: unable to load request: %w", op, err)
	}

	if !constantTimeEqual(r.PKCEVerifier().Verifier(), verifier) {
		p.logger.Warn("callback verifier does not match the authorization request", "request_id", r.ID())
		return nil, fmt.Errorf("%s: %w", op, ErrStateMismatch)
	}
	if params.Error != "" {
		p.logger.Warn("provider returned an authorization error", "request_id", r.ID(), "error", params.Error)
		return nil, fmt.Errorf("%s: provider returned %q: %w: %w", op, params.Error, ErrCodeExchange, ErrLoginFailed)
	}
	if params.Code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w: %w", op, ErrCodeExchange, ErrInvalidParameter)
	}

	t, err := p.Exchange(ctx, r, params.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := p.session.Set(t); err != nil {
		return nil, fmt.Errorf("%s: unable to store session: %w", op, err)
	}
	p.logger.Debug("authorization complete", "request_id", r.ID())
	return t, nil
}

// Exchange redeems the authorization code for the request at the provider's
// token endpoint, sending the request's PKCE verifier. When the provider
// returns an id_token it's verified, including its nonce. It does not check
// state or consume the request; see CompleteAuthorization.
//
// Errors wrap ErrCodeExchange.
func (p *Provider) Exchange(ctx context.Context, r *Request, code string) (*Token, error) {
	const op = "Provider.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w: %w", op, ErrCodeExchange, ErrNilParameter)
	}
	if code == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w: %w", op, ErrCodeExchange, ErrInvalidParameter)
	}
	pc, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	oauth2Config := pc.client.oauth2Config(r.Scopes())
	if r.RedirectURL() != "" {
		oauth2Config.RedirectURL = r.RedirectURL()
	}
	params, err := pc.client.tokenParams()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCodeExchange, err)
	}
	params = append(params, oauth2.VerifierOption(r.PKCEVerifier().Verifier()))
	oauth2Token, err := oauth2Config.Exchange(oidc.ClientContext(ctx, p.client), code, params...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			p.logger.Warn("token endpoint rejected the code", "request_id", r.ID(), "error", re.ErrorCode)
			return nil, fmt.Errorf("%s: provider rejected the code (%s): %w", op, re.ErrorCode, ErrCodeExchange)
		}
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w: %w", op, ErrCodeExchange, err)
	}

	var idToken IDToken
	if raw, ok := oauth2Token.Extra("id_token").(string); ok && raw != "" {
		idToken = IDToken(raw)
		if err := p.verifyIDToken(ctx, pc, idToken, r.Nonce()); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrCodeExchange, err)
		}
	}
	t, err := NewToken(idToken, oauth2Token, WithNow(p.nowFunc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCodeExchange, err)
	}
	return t, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, pc *providerContext, t IDToken, nonce string) error {
	const op = "Provider.verifyIDToken"
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	verifier := pc.provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: p.config.signingAlgs(),
		Now:                  p.now,
	})
	oidcIDToken, err := verifier.Verify(oidc.ClientContext(ctx, p.client), string(t))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerificationFailed, err)
	}
	if !constantTimeEqual(oidcIDToken.Nonce, nonce) {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	return nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
