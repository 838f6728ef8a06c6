// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"fmt"
	"net/http"

	"github.com/tacotsubo/authcode/oidc"
)

// Logout creates a handler that signs the user out. The provider's session
// and any pending binding are cleared, then the user agent is redirected to
// the provider's end-session endpoint. When the provider has no end-session
// endpoint, or it cannot be reached, the user agent is sent to fallbackURL
// instead.
//
// The opts are passed to oidc.Provider.Logout for every request.
func Logout(p *oidc.Provider, ch CorrelationChannel, fallbackURL string, opt ...oidc.Option) (http.HandlerFunc, error) {
	const op = "callback.Logout"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrInvalidParameter)
	case ch == nil:
		return nil, fmt.Errorf("%s: correlation channel is nil: %w", op, oidc.ErrInvalidParameter)
	case fallbackURL == "":
		return nil, fmt.Errorf("%s: fallback URL is empty: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		ch.Clear(w)
		u, err := p.Logout(req.Context(), opt...)
		if err != nil {
			u = fallbackURL
		}
		http.Redirect(w, req, u, http.StatusFound)
	}, nil
}
