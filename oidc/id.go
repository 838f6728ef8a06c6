// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/base62"
	"github.com/hashicorp/go-uuid"
)

// DefaultIDLength is the default length for generated IDs, which are used for
// state and nonce parameters during OIDC flows.
//
// For ID length requirements see:
// https://tools.ietf.org/html/rfc6749#section-10.10
const DefaultIDLength = 32

// NewID generates a ID with an optional prefix. The ID generated is suitable
// for a Request's State or Nonce. The ID length will be DefaultIDLen, unless
// an optional prefix is provided which will add the prefix's length + an
// underscore. The WithPrefix option is supported.
//
// For ID length requirements see:
// https://tools.ietf.org/html/rfc6749#section-10.10
func NewID(opt ...Option) (string, error) {
	const op = "NewID"
	opts := getIDOpts(opt...)
	id, err := base62.Random(DefaultIDLength)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIDGeneratorFailed)
	}
	switch {
	case opts.withPrefix != "":
		return fmt.Sprintf("%s_%s", opts.withPrefix, id), nil
	default:
		return id, nil
	}
}

// NewState generates an opaque anti-CSRF state value. It is safe to use as a
// query parameter or cookie value.
func NewState() (string, error) {
	const op = "NewState"
	s, err := NewID(WithPrefix("st"))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// NewNonce generates an opaque nonce value for an id_token.
func NewNonce() (string, error) {
	const op = "NewNonce"
	n, err := NewID(WithPrefix("n"))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// newRequestID returns a non-secret identifier for a Request which may be
// logged.
func newRequestID() (string, error) {
	const op = "newRequestID"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate request id: %w", op, ErrIDGeneratorFailed)
	}
	return id, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

// idDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func idDefaults() idOptions {
	return idOptions{}
}

// getIDOpts gets the defaults and applies the opt overrides passed
// in.
func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for an new ID.  When this options is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
//
// Valid for: ID
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
