// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for relying parties using the OIDC authorization code flow
with PKCE against a single provider.

Primary types provided by the package

* Config: the static configuration of the relying party (issuer, client
id/secret, redirect URL, scopes, audience/resource, token endpoint auth
method and supported signing algorithms).

* Provider: integration with the provider. It discovers and caches the
provider's metadata, builds authorization URLs, completes callbacks by
exchanging codes for tokens and ends sessions.

* Request: one pending authorization request. It carries the state, nonce and
PKCE verifier that bind a callback to the request that started it, and is
consumed once from a RequestStore.

* Token: the token set returned by a code exchange. Token values redact
themselves when printed or marshaled.

* SessionStore: the single signed in session.

The oidc/callback package

The callback package provides http.HandlerFuncs for starting a login,
handling the redirect back from the provider and logging out, plus a cookie
backed CorrelationChannel for carrying the state and verifier across the
redirect.
*/
package oidc
