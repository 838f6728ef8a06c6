// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/tacotsubo/authcode/oidc/clientassertion"
	"golang.org/x/oauth2"
)

// ClientRegistration is the registered relying party bound to the provider's
// discovered metadata. It is immutable; use NewClientRegistration or
// Provider.Client to get one.
type ClientRegistration struct {
	ClientID     string
	ClientSecret ClientSecret
	RedirectURL  string
	AuthMethod   AuthMethod

	// Scopes, Audience and Resource are the defaults for authorization
	// requests made with this registration.
	Scopes   []string
	Audience string
	Resource string

	metadata *ProviderMetadata

	// assertion is set for the ClientSecretJWT and PrivateKeyJWT auth
	// methods.
	assertion *clientassertion.JWT
}

// NewClientRegistration builds a ClientRegistration from static configuration
// and the provider's metadata. It performs no I/O.
func NewClientRegistration(c *Config, md *ProviderMetadata) (*ClientRegistration, error) {
	const op = "NewClientRegistration"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if md == nil {
		return nil, fmt.Errorf("%s: provider metadata is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	scopes := make([]string, len(c.Scopes))
	copy(scopes, c.Scopes)
	assertion, err := newClientAssertion(c, md)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &ClientRegistration{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		AuthMethod:   c.authMethod(),
		Scopes:       scopes,
		Audience:     c.Audience,
		Resource:     c.Resource,
		metadata:     md,
		assertion:    assertion,
	}, nil
}

// newClientAssertion returns the signer of client assertions for the JWT
// auth methods and nil for the others. Assertions are audienced to the token
// endpoint.
func newClientAssertion(c *Config, md *ProviderMetadata) (*clientassertion.JWT, error) {
	const op = "newClientAssertion"
	var opts []clientassertion.Option
	switch c.authMethod() {
	case ClientSecretJWT:
		opts = append(opts, clientassertion.WithClientSecret(string(c.ClientSecret), clientassertion.HS256))
	case PrivateKeyJWT:
		opts = append(opts, clientassertion.WithRSAKey(c.ClientAssertionKey, clientassertion.RS256))
		if c.ClientAssertionKeyID != "" {
			opts = append(opts, clientassertion.WithKeyID(c.ClientAssertionKeyID))
		}
	default:
		return nil, nil
	}
	j, err := clientassertion.NewJWT(c.ClientID, []string{md.TokenEndpoint}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrConfiguration, err)
	}
	return j, nil
}

// tokenParams returns the extra token request parameters that authenticate
// the client, if any.
func (c *ClientRegistration) tokenParams() ([]oauth2.AuthCodeOption, error) {
	const op = "ClientRegistration.tokenParams"
	if c.assertion == nil {
		return nil, nil
	}
	a, err := c.assertion.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to sign client assertion: %w", op, err)
	}
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("client_assertion_type", clientassertion.JWTTypeParam),
		oauth2.SetAuthURLParam("client_assertion", a),
	}, nil
}

// Metadata returns the provider metadata the registration is bound to.
func (c *ClientRegistration) Metadata() *ProviderMetadata {
	return c.metadata
}

// oauth2Config returns an x/oauth2 config for the registration. The "openid"
// scope is always first and scopes are de-duplicated.
func (c *ClientRegistration) oauth2Config(scopes []string) *oauth2.Config {
	style, secret := oauth2.AuthStyleInParams, string(c.ClientSecret)
	switch c.AuthMethod {
	case ClientSecretBasic:
		style = oauth2.AuthStyleInHeader
	case AuthMethodNone, ClientSecretJWT, PrivateKeyJWT:
		secret = ""
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: secret,
		RedirectURL:  c.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.metadata.AuthorizationEndpoint,
			TokenURL:  c.metadata.TokenEndpoint,
			AuthStyle: style,
		},
		Scopes: requestScopes(scopes),
	}
}

func requestScopes(scopes []string) []string {
	return strutil.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, scopes...), false)
}
