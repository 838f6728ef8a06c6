// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"fmt"
	"net/http"

	"github.com/tacotsubo/authcode/oidc"
)

// Login creates a handler that starts an authorization code flow. It asks
// the provider for an authorization URL, saves the request's state and code
// verifier to the CorrelationChannel and redirects the user agent to the
// provider.
//
// The opts are passed to oidc.Provider.AuthURL for every request.
func Login(p *oidc.Provider, ch CorrelationChannel, eFn ErrorResponseFunc, opt ...oidc.Option) (http.HandlerFunc, error) {
	const op = "callback.Login"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrInvalidParameter)
	case ch == nil:
		return nil, fmt.Errorf("%s: correlation channel is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		authURL, r, err := p.AuthURL(req.Context(), opt...)
		if err != nil {
			eFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		b := Binding{State: r.State(), Verifier: r.PKCEVerifier().Verifier()}
		if err := ch.Save(w, b); err != nil {
			eFn(r.State(), nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		http.Redirect(w, req, authURL, http.StatusFound)
	}, nil
}
