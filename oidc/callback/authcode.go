// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tacotsubo/authcode/oidc"
)

// AuthCode creates an authorization code callback handler. It loads the
// Binding saved by Login from the CorrelationChannel, completes the
// authorization with the provider and always clears the binding, since a
// binding is only good for one callback.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(p *oidc.Provider, ch CorrelationChannel, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrInvalidParameter)
	case ch == nil:
		return nil, fmt.Errorf("%s: correlation channel is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found.
		params := oidc.CallbackParams{
			Code:             req.FormValue("code"),
			State:            req.FormValue("state"),
			Error:            req.FormValue("error"),
			ErrorDescription: req.FormValue("error_description"),
			ErrorURI:         req.FormValue("error_uri"),
		}

		b, err := ch.Load(req)
		ch.Clear(w)
		if err != nil {
			eFn(params.State, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}

		t, err := p.CompleteAuthorization(req.Context(), params, b.Verifier, b.State)
		if err != nil {
			var respErr *AuthenErrorResponse
			if errors.Is(err, oidc.ErrLoginFailed) {
				respErr = &AuthenErrorResponse{
					Error:       params.Error,
					Description: params.ErrorDescription,
					URI:         params.ErrorURI,
				}
			}
			eFn(params.State, respErr, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(params.State, t, w, req)
	}, nil
}
