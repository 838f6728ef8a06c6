// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/tacotsubo/authcode/oidc"
)

// SuccessResponseFunc is used by AuthCode to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful authentication response. The oidc.Token is the result
// of a successful token exchange with the provider and has already been
// stored in the provider's session. The function should use the
// http.ResponseWriter to send back whatever content (headers, html, JSON,
// redirects) it wishes to the user agent that originated the flow.
type SuccessResponseFunc func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the handlers to create a http response when
// the request fails.
//
// The function receives the state returned as part of the authentication
// response, when there is one. respErr is only set when the provider
// redirected back with an error response. e is the error raised while
// processing the request and is always set; use errors.Is with the oidc
// error taxonomy (oidc.ErrStateMismatch, oidc.ErrMissingBinding,
// oidc.ErrCodeExchange, oidc.ErrLoginFailed) to pick a response.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}
