// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/tacotsubo/authcode/oidc/clientassertion"
	"github.com/tacotsubo/authcode/oidc/internal/httpclient"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// AuthMethod is how the client authenticates at the token endpoint.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#ClientAuthentication
type AuthMethod string

const (
	ClientSecretPost  AuthMethod = "client_secret_post"
	ClientSecretBasic AuthMethod = "client_secret_basic"
	// ClientSecretJWT signs a client assertion with the client secret (HS256).
	ClientSecretJWT AuthMethod = "client_secret_jwt"
	// PrivateKeyJWT signs a client assertion with Config.ClientAssertionKey
	// (RS256).
	PrivateKeyJWT AuthMethod = "private_key_jwt"
	// AuthMethodNone is for public clients which rely on PKCE alone.
	AuthMethodNone AuthMethod = "none"
)

// DefaultAuthMethod is used when a Config doesn't specify one.
const DefaultAuthMethod = ClientSecretPost

// Config represents the static configuration of a relying party using the
// authorization code flow with PKCE.
type Config struct {
	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret.  It may be empty when
	// AuthMethod is AuthMethodNone.
	ClientSecret ClientSecret

	// RedirectURL is the single registered callback URL.
	RedirectURL string

	// Scopes is a list of additional scopes to request of the provider. The
	// required "openid" scope is always requested.
	Scopes []string

	// Audience is an optional API audience sent in authorization requests.
	Audience string

	// Resource is an optional resource indicator sent in authorization
	// requests.
	Resource string

	// AuthMethod is the token endpoint client authentication method.
	AuthMethod AuthMethod

	// SupportedSigningAlgs is a list of supported id_token signing
	// algorithms. Defaults to RS256.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// ClientAssertionKey signs client assertions when AuthMethod is
	// PrivateKeyJWT. ClientAssertionKeyID is its optional "kid".
	ClientAssertionKey   *rsa.PrivateKey `json:"-"`
	ClientAssertionKeyID string
}

// NewConfig composes a new config for a provider.
//
// Supported options:
//   - WithScopes
//   - WithAudience
//   - WithResource
//   - WithAuthMethod
//   - WithSupportedSigningAlgs
//   - WithProviderCA
//   - WithClientAssertionKey
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		RedirectURL:          redirectURL,
		Scopes:               opts.withScopes,
		Audience:             opts.withAudience,
		Resource:             opts.withResource,
		AuthMethod:           opts.withAuthMethod,
		SupportedSigningAlgs: opts.withSupportedSigningAlgs,
		ProviderCA:           opts.withProviderCA,
		ClientAssertionKey:   opts.withClientAssertionKey,
		ClientAssertionKeyID: opts.withClientAssertionKeyID,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. It reports every problem found, not
// just the first. Among other validations, it verifies the issuer is not
// empty, but it doesn't verify the Issuer is discoverable via an http
// request. All failures wrap ErrConfiguration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var errs *multierror.Error
	if c.ClientID == "" {
		errs = multierror.Append(errs, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	switch c.authMethod() {
	case ClientSecretPost, ClientSecretBasic:
		if c.ClientSecret == "" {
			errs = multierror.Append(errs, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
		}
	case ClientSecretJWT:
		if err := clientassertion.HS256.Validate(string(c.ClientSecret)); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("client secret can't sign assertions: %w: %w", ErrInvalidParameter, err))
		}
	case PrivateKeyJWT:
		if err := clientassertion.RS256.Validate(c.ClientAssertionKey); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("client assertion key is invalid: %w: %w", ErrInvalidParameter, err))
		}
	case AuthMethodNone:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unsupported auth method %q: %w", c.AuthMethod, ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		errs = multierror.Append(errs, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	} else if _, err := url.Parse(c.RedirectURL); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("redirect URL %q is invalid: %w", c.RedirectURL, ErrInvalidParameter))
	}
	if c.Issuer == "" {
		errs = multierror.Append(errs, fmt.Errorf("discovery URL is empty: %w", ErrInvalidParameter))
	} else {
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("issuer %q is invalid: %w", c.Issuer, ErrInvalidParameter))
		case !strutil.StrListContains([]string{"https", "http"}, u.Scheme):
			errs = multierror.Append(errs, fmt.Errorf("issuer %q scheme is not http or https: %w", c.Issuer, ErrInvalidParameter))
		}
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			errs = multierror.Append(errs, fmt.Errorf("provider CA is not a valid PEM: %w", ErrInvalidCACert))
		}
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			errs = multierror.Append(errs, fmt.Errorf("unsupported algorithm %q: %w", a, ErrInvalidParameter))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return nil
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := httpclient.New(c.ProviderCA)
	if err != nil {
		if errors.Is(err, httpclient.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value successfully: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

func (c *Config) authMethod() AuthMethod {
	if c.AuthMethod == "" {
		return DefaultAuthMethod
	}
	return c.AuthMethod
}

func (c *Config) signingAlgs() []string {
	if len(c.SupportedSigningAlgs) == 0 {
		return []string{string(RS256)}
	}
	algs := make([]string, 0, len(c.SupportedSigningAlgs))
	for _, a := range c.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	return algs
}

// configOptions is the set of available options
type configOptions struct {
	withScopes               []string
	withAudience             string
	withResource             string
	withAuthMethod           AuthMethod
	withSupportedSigningAlgs []Alg
	withProviderCA           string
	withClientAssertionKey   *rsa.PrivateKey
	withClientAssertionKeyID string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withAuthMethod: DefaultAuthMethod,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithAuthMethod provides an optional token endpoint auth method.
//
// Valid for: Config
func WithAuthMethod(m AuthMethod) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthMethod = m
		}
	}
}

// WithSupportedSigningAlgs provides an optional list of id_token signing
// algorithms.
//
// Valid for: Config
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config
//
// Valid for: Config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithClientAssertionKey provides the key, and optionally its key id, used
// to sign client assertions for the PrivateKeyJWT auth method.
//
// Valid for: Config
func WithClientAssertionKey(key *rsa.PrivateKey, keyID string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientAssertionKey = key
			o.withClientAssertionKeyID = keyID
		}
	}
}
