// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/tacotsubo/authcode/oidc"
)

const (
	// DefaultVerifierCookie is the default name of the cookie that carries
	// the PKCE code verifier.
	DefaultVerifierCookie = "authcode_verifier"

	// DefaultStateCookie is the default name of the cookie that carries the
	// request state.
	DefaultStateCookie = "authcode_state"

	// DefaultCookieMaxAge matches oidc.DefaultRequestExpiry plus room for a
	// slow user.
	DefaultCookieMaxAge = 5 * time.Minute
)

// CookieChannel is a CorrelationChannel that keeps the Binding in two
// httpOnly, SameSite=Lax cookies. Values are authenticated with the hash key
// and, when a block key is given, encrypted.
type CookieChannel struct {
	codec        *securecookie.SecureCookie
	verifierName string
	stateName    string
	maxAge       time.Duration
	secure       bool
	path         string
}

var _ CorrelationChannel = (*CookieChannel)(nil)

// NewCookieChannel creates a CookieChannel. The hashKey is required and
// should be 32 or 64 bytes. The blockKey is optional and must be 16, 24 or
// 32 bytes when set.
//
// Supported options: WithCookieNames, WithCookieMaxAge, WithCookieSecure,
// WithCookiePath
func NewCookieChannel(hashKey, blockKey []byte, opt ...oidc.Option) (*CookieChannel, error) {
	const op = "NewCookieChannel"
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("%s: missing hash key: %w", op, oidc.ErrInvalidParameter)
	}
	switch len(blockKey) {
	case 0, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: block key must be 16, 24 or 32 bytes: %w", op, oidc.ErrInvalidParameter)
	}
	opts := getCookieOpts(opt...)
	switch {
	case opts.withVerifierName == "" || opts.withStateName == "":
		return nil, fmt.Errorf("%s: cookie names must not be empty: %w", op, oidc.ErrInvalidParameter)
	case opts.withVerifierName == opts.withStateName:
		return nil, fmt.Errorf("%s: cookie names must differ: %w", op, oidc.ErrInvalidParameter)
	case opts.withMaxAge < time.Second:
		return nil, fmt.Errorf("%s: max age must be at least a second: %w", op, oidc.ErrInvalidParameter)
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(opts.withMaxAge.Seconds()))
	return &CookieChannel{
		codec:        codec,
		verifierName: opts.withVerifierName,
		stateName:    opts.withStateName,
		maxAge:       opts.withMaxAge,
		secure:       opts.withSecure,
		path:         opts.withPath,
	}, nil
}

// Save writes the binding as two cookies.
func (c *CookieChannel) Save(w http.ResponseWriter, b Binding) error {
	const op = "CookieChannel.Save"
	switch {
	case w == nil:
		return fmt.Errorf("%s: response writer is nil: %w", op, oidc.ErrNilParameter)
	case b.State == "" || b.Verifier == "":
		return fmt.Errorf("%s: binding is incomplete: %w", op, oidc.ErrInvalidParameter)
	}
	verifier, err := c.codec.Encode(c.verifierName, b.Verifier)
	if err != nil {
		return fmt.Errorf("%s: unable to encode verifier: %w", op, err)
	}
	state, err := c.codec.Encode(c.stateName, b.State)
	if err != nil {
		return fmt.Errorf("%s: unable to encode state: %w", op, err)
	}
	http.SetCookie(w, c.cookie(c.verifierName, verifier, int(c.maxAge.Seconds())))
	http.SetCookie(w, c.cookie(c.stateName, state, int(c.maxAge.Seconds())))
	return nil
}

// Load reads the binding from the request's cookies. Missing cookies leave
// the matching field empty.
func (c *CookieChannel) Load(req *http.Request) (Binding, error) {
	const op = "CookieChannel.Load"
	if req == nil {
		return Binding{}, fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	}
	var b Binding
	var err error
	if b.Verifier, err = c.read(req, c.verifierName); err != nil {
		return Binding{}, fmt.Errorf("%s: verifier: %w", op, err)
	}
	if b.State, err = c.read(req, c.stateName); err != nil {
		return Binding{}, fmt.Errorf("%s: state: %w", op, err)
	}
	return b, nil
}

// Clear expires both cookies.
func (c *CookieChannel) Clear(w http.ResponseWriter) {
	if w == nil {
		return
	}
	http.SetCookie(w, c.cookie(c.verifierName, "", -1))
	http.SetCookie(w, c.cookie(c.stateName, "", -1))
}

func (c *CookieChannel) read(req *http.Request, name string) (string, error) {
	ck, err := req.Cookie(name)
	if errors.Is(err, http.ErrNoCookie) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", oidc.ErrMissingBinding, err)
	}
	var v string
	if err := c.codec.Decode(name, ck.Value, &v); err != nil {
		return "", fmt.Errorf("unable to decode cookie: %w: %w", oidc.ErrMissingBinding, err)
	}
	return v, nil
}

func (c *CookieChannel) cookie(name, value string, maxAge int) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		ck.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	return ck
}

// cookieOptions is the set of available options for CookieChannel
// functions
type cookieOptions struct {
	withVerifierName string
	withStateName    string
	withMaxAge       time.Duration
	withSecure       bool
	withPath         string
}

// cookieDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func cookieDefaults() cookieOptions {
	return cookieOptions{
		withVerifierName: DefaultVerifierCookie,
		withStateName:    DefaultStateCookie,
		withMaxAge:       DefaultCookieMaxAge,
		withPath:         "/",
	}
}

// getCookieOpts gets the defaults and applies the opt overrides passed in.
func getCookieOpts(opt ...oidc.Option) cookieOptions {
	opts := cookieDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithCookieNames overrides the names of the verifier and state cookies.
//
// Valid for: NewCookieChannel
func WithCookieNames(verifier, state string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withVerifierName = verifier
			o.withStateName = state
		}
	}
}

// WithCookieMaxAge sets how long the binding cookies live.
//
// Valid for: NewCookieChannel
func WithCookieMaxAge(d time.Duration) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withMaxAge = d
		}
	}
}

// WithCookieSecure sets the Secure attribute on the binding cookies. It
// should be set whenever the redirect URL is https.
//
// Valid for: NewCookieChannel
func WithCookieSecure(secure bool) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withSecure = secure
		}
	}
}

// WithCookiePath sets the Path attribute on the binding cookies.
//
// Valid for: NewCookieChannel
func WithCookiePath(p string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*cookieOptions); ok {
			o.withPath = p
		}
	}
}
