// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// authcode provides an OpenID Connect relying party for the authorization
// code flow with PKCE against a single provider, plus RP-initiated logout.
//
// Package oidc holds the flow itself: discovery, the authorization request
// builder, the callback verifier and token exchange, and the session slot.
// Package oidc/callback adapts it to net/http handlers, and cmd/authcode is a
// runnable demo server.
package authcode
