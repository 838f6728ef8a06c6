// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Provider, Request, Token, MemoryRequestStore and
// BuildAuthorizationRequest
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *providerOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		case *storeOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Token,
// Request.IsExpired and MemoryRequestStore.
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenOptions:
			v.withExpirySkew = d
		case *expiryOptions:
			v.withExpirySkew = d
		case *storeOptions:
			v.withExpirySkew = d
		}
	}
}

// WithScopes provides an optional list of scopes.
//
// Valid for: Config and BuildAuthorizationRequest
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withScopes = append(v.withScopes, scopes...)
		case *reqOptions:
			v.withScopes = append(v.withScopes, scopes...)
		}
	}
}

// WithAudience provides an optional API audience sent as the "audience"
// parameter of the authorization request (used by Auth0 and others).
//
// Valid for: Config and BuildAuthorizationRequest
func WithAudience(aud string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withAudience = aud
		case *reqOptions:
			v.withAudience = aud
		}
	}
}

// WithResource provides an optional resource indicator sent as the
// "resource" parameter of the authorization request. See:
// https://www.rfc-editor.org/rfc/rfc8707
//
// Valid for: Config and BuildAuthorizationRequest
func WithResource(res string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withResource = res
		case *reqOptions:
			v.withResource = res
		}
	}
}

// WithLogger provides an optional logger for the Provider.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
