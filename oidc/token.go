// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string {
	return RedactedRefreshToken
}

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedRefreshToken)
}

// IDToken is an oidc id_token.
// See https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims. The signature is not checked, so only
// use it on id_tokens that were verified when the Token was created.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	algs := make([]jose.SignatureAlgorithm, 0, len(supportedAlgorithms))
	for a := range supportedAlgorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	tok, err := jwt.ParseSigned(rawToken, algs)
	if err != nil {
		return fmt.Errorf("%s: malformed jwt: %w: %w", op, ErrInvalidParameter, err)
	}
	if err := tok.UnsafeClaimsWithoutVerification(claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return nil
}

// Token is the token set returned by a successful code exchange.
type Token struct {
	accessToken  AccessToken
	idToken      IDToken
	refreshToken RefreshToken
	tokenType    string
	expiry       time.Time

	nowFunc func() time.Time
}

// NewToken creates a Token from an oauth2.Token and an optional (already
// verified) id_token.
//
// Supported options:
//   - WithNow
func NewToken(i IDToken, t *oauth2.Token, opt ...Option) (*Token, error) {
	const op = "NewToken"
	if t == nil {
		return nil, fmt.Errorf("%s: oauth2 token is nil: %w", op, ErrNilParameter)
	}
	if t.AccessToken == "" {
		return nil, fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	opts := getTokenOpts(opt...)
	return &Token{
		accessToken:  AccessToken(t.AccessToken),
		idToken:      i,
		refreshToken: RefreshToken(t.RefreshToken),
		tokenType:    t.TokenType,
		expiry:       t.Expiry,
		nowFunc:      opts.withNowFunc,
	}, nil
}

// AccessToken returns the access_token.
func (t *Token) AccessToken() AccessToken { return t.accessToken }

// IDToken returns the id_token, which may be empty.
func (t *Token) IDToken() IDToken { return t.idToken }

// RefreshToken returns the refresh_token, which may be empty.
func (t *Token) RefreshToken() RefreshToken { return t.refreshToken }

// TokenType returns the token_type, typically "Bearer".
func (t *Token) TokenType() string { return t.tokenType }

// Expiry returns the access_token's expiry. A zero value means it does not
// expire.
func (t *Token) Expiry() time.Time { return t.expiry }

// IsExpired will return true if the token's access token is expired or
// within the expiry skew (default 10s).
//
// Supported options:
//   - WithExpirySkew
func (t *Token) IsExpired(opt ...Option) bool {
	if t.expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.expiry.Round(0).Before(t.now().Add(opts.withExpirySkew))
}

// Valid will ensure that the access_token is not empty or expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// StaticTokenSource returns a TokenSource that always returns the same token.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  string(t.accessToken),
		RefreshToken: string(t.refreshToken),
		TokenType:    t.tokenType,
		Expiry:       t.expiry,
	})
}

func (t *Token) copy() *Token {
	cp := *t
	return &cp
}

func (t *Token) now() time.Time {
	if t.nowFunc != nil {
		return t.nowFunc()
	}
	return time.Now()
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: 10 * time.Second,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed
// in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
