// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback is a package that provides http.HandlerFunc(s) for driving an
oidc.Provider's authorization code flow with PKCE from a web server: Login
starts the flow, AuthCode handles the provider's redirect back and Logout ends
the session.

The state and code verifier of a pending login travel between Login and
AuthCode through a CorrelationChannel. CookieChannel is the provided
implementation and keeps them in tamper-evident cookies.
*/
package callback
