// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"
)

// DefaultRequestExpiry is how long a pending authorization request stays
// valid when no other expiry is configured.
const DefaultRequestExpiry = 2 * time.Minute

// defaultRequestExpirySkew is used by Request.IsExpired when no skew is given.
const defaultRequestExpirySkew = 1 * time.Second

// Request is a pending authorization: the state, nonce and PKCE verifier
// generated for one authorization request, plus its expiry. It must be
// consumed at most once (see RequestStore).
//
// Only ID() is safe to log. State, nonce and verifier are secrets.
type Request struct {
	id          string
	state       string
	nonce       string
	verifier    CodeVerifier
	redirectURL string
	scopes      []string
	audience    string
	resource    string

	// expiration is the expiration time for the Request.
	expiration time.Time

	// nowFunc is an optional function that returns the current time
	nowFunc func() time.Time
}

// NewRequest creates a new Request with a fresh id, state, nonce and PKCE
// verifier. The expireIn must be greater than zero.
//
// Supported options:
//   - WithNow
//   - WithScopes
//   - WithAudience
//   - WithResource
//   - WithPKCE
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Request, error) {
	const op = "NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn must be greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getReqOpts(opt...)
	id, err := newRequestID()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state, err := NewState()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state: %w", op, err)
	}
	nonce, err := NewNonce()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a nonce: %w", op, err)
	}
	verifier := opts.withVerifier
	if verifier == nil {
		v, err := NewCodeVerifier()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		verifier = v
	}

	r := &Request{
		id:          id,
		state:       state,
		nonce:       nonce,
		verifier:    verifier,
		redirectURL: redirectURL,
		scopes:      requestScopes(opts.withScopes),
		audience:    opts.withAudience,
		resource:    opts.withResource,
		nowFunc:     opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// ID is a loggable correlation id for the request.
func (r *Request) ID() string { return r.id }

// State is the anti-CSRF value bound to the request.
func (r *Request) State() string { return r.state }

// Nonce is the id_token replay protection value bound to the request.
func (r *Request) Nonce() string { return r.nonce }

// PKCEVerifier returns the request's code verifier.
func (r *Request) PKCEVerifier() CodeVerifier { return r.verifier }

// RedirectURL is the callback the provider will redirect to.
func (r *Request) RedirectURL() string { return r.redirectURL }

// Scopes requested. "openid" is always the first entry.
func (r *Request) Scopes() []string { return r.scopes }

// Audience is the optional audience parameter.
func (r *Request) Audience() string { return r.audience }

// Resource is the optional resource indicator parameter.
func (r *Request) Resource() string { return r.resource }

// ExpiresAt returns the time the request expires.
func (r *Request) ExpiresAt() time.Time { return r.expiration }

// IsExpired returns true if the request has expired. Supports the
// WithExpirySkew option.
func (r *Request) IsExpired(opt ...Option) bool {
	opts := getExpiryOpts(opt...)
	return r.expiration.Before(r.now().Add(opts.withExpirySkew))
}

// now returns the current time using the optional timeFn
func (r *Request) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// reqOptions is the set of available options for Request functions
type reqOptions struct {
	withNowFunc  func() time.Time
	withScopes   []string
	withAudience string
	withResource string
	withVerifier CodeVerifier
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPKCE provides an optional PKCE code verifier for a Request instead of
// generating a new one.
//
// Valid for: Request
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*reqOptions); ok {
			o.withVerifier = v
		}
	}
}

// expiryOptions is the set of options for IsExpired checks.
type expiryOptions struct {
	withExpirySkew time.Duration
}

func expiryDefaults() expiryOptions {
	return expiryOptions{
		withExpirySkew: defaultRequestExpirySkew,
	}
}

func getExpiryOpts(opt ...Option) expiryOptions {
	opts := expiryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
