// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/url"
)

// EndSessionURL builds the provider's RP-initiated logout URL.
//
// See: https://openid.net/specs/openid-connect-rpinitiated-1_0.html
//
// Supported options:
//   - WithIDTokenHint
//   - WithPostLogoutRedirectURL
//   - WithLogoutState
func (c *ClientRegistration) EndSessionURL(opt ...Option) (string, error) {
	const op = "ClientRegistration.EndSessionURL"
	if c.metadata == nil || c.metadata.EndSessionEndpoint == "" {
		return "", fmt.Errorf("%s: %w", op, ErrEndSessionNotSupported)
	}
	u, err := url.Parse(c.metadata.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("%s: end_session_endpoint is invalid: %w", op, ErrEndSessionNotSupported)
	}
	opts := getLogoutOpts(opt...)
	q := u.Query()
	q.Set("client_id", c.ClientID)
	if opts.withIDTokenHint != "" {
		q.Set("id_token_hint", string(opts.withIDTokenHint))
	}
	if opts.withPostLogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", opts.withPostLogoutRedirectURL)
	}
	if opts.withState != "" {
		q.Set("state", opts.withState)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Logout ends the local session and returns the provider's end-session URL
// the user agent should be redirected to. The local session is cleared even
// when an error is returned, for example when the provider doesn't support
// end-session (ErrEndSessionNotSupported) or can't be discovered.
//
// The current session's id_token is sent as the id_token_hint unless one is
// provided.
//
// Supported options:
//   - WithIDTokenHint
//   - WithPostLogoutRedirectURL
//   - WithLogoutState
func (p *Provider) Logout(ctx context.Context, opt ...Option) (string, error) {
	const op = "Provider.Logout"
	if t, ok := p.session.Get(); ok && t.IDToken() != "" {
		opt = append([]Option{WithIDTokenHint(t.IDToken())}, opt...)
	}
	p.session.Clear()

	c, err := p.Client(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := c.EndSessionURL(opt...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// logoutOptions is the set of available options for logout functions
type logoutOptions struct {
	withIDTokenHint           IDToken
	withPostLogoutRedirectURL string
	withState                 string
}

func logoutDefaults() logoutOptions {
	return logoutOptions{}
}

func getLogoutOpts(opt ...Option) logoutOptions {
	opts := logoutDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithIDTokenHint provides an optional id_token_hint for an end-session
// request.
//
// Valid for: EndSessionURL and Logout
func WithIDTokenHint(t IDToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*logoutOptions); ok {
			o.withIDTokenHint = t
		}
	}
}

// WithPostLogoutRedirectURL provides an optional URL the provider redirects to
// after logout. It must be registered with the provider.
//
// Valid for: EndSessionURL and Logout
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*logoutOptions); ok {
			o.withPostLogoutRedirectURL = u
		}
	}
}

// WithLogoutState provides an optional state for an end-session request.
//
// Valid for: EndSessionURL and Logout
func WithLogoutState(s string) Option {
	return func(o interface{}) {
		if o, ok := o.(*logoutOptions); ok {
			o.withState = s
		}
	}
}
