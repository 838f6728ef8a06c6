// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-secure-stdlib/strutil"
)

// WellKnownPath is the OIDC discovery document path appended to the issuer.
const WellKnownPath = "/.well-known/openid-configuration"

// ProviderMetadata is the subset of the provider's discovery document the
// authorization code flow depends on. It is immutable once discovered.
//
// See: https://openid.net/specs/openid-connect-discovery-1_0.html#ProviderMetadata
type ProviderMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	EndSessionEndpoint            string   `json:"end_session_endpoint,omitempty"`
	JWKSURL                       string   `json:"jwks_uri"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE reports whether the provider advertises the S256 challenge
// method. Providers that omit code_challenge_methods_supported are assumed to
// support it.
func (m *ProviderMetadata) SupportsPKCE() bool {
	if len(m.CodeChallengeMethodsSupported) == 0 {
		return true
	}
	return strutil.StrListContains(m.CodeChallengeMethodsSupported, string(S256))
}

func (m *ProviderMetadata) validate() error {
	const op = "ProviderMetadata.validate"
	var missing []string
	if m.Issuer == "" {
		missing = append(missing, "issuer")
	}
	if m.AuthorizationEndpoint == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if m.TokenEndpoint == "" {
		missing = append(missing, "token_endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: discovery document missing %s: %w", op, strings.Join(missing, ", "), ErrDiscovery)
	}
	return nil
}

// discover fetches the issuer's discovery document. The ctx must carry the
// http client (see oidc.ClientContext) and should outlive the request since
// the returned provider fetches its JWKS with it.
func discover(ctx context.Context, issuer string) (*oidc.Provider, *ProviderMetadata, error) {
	const op = "discover"
	provider, err := oidc.NewProvider(ctx, issuer) // makes http req to issuer for discovery
	if err != nil {
		return nil, nil, fmt.Errorf("%s: unable to fetch discovery document: %w: %w", op, ErrDiscovery, err)
	}
	md := &ProviderMetadata{}
	if err := provider.Claims(md); err != nil {
		return nil, nil, fmt.Errorf("%s: unable to decode discovery document: %w: %w", op, ErrDiscovery, err)
	}
	if err := md.validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	return provider, md, nil
}
