// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import "net/http"

// Binding is the per user agent data that ties a callback to the login that
// started it: the request's state and its PKCE code verifier.
type Binding struct {
	State    string
	Verifier string
}

// IsZero reports whether neither value is set.
func (b Binding) IsZero() bool {
	return b.State == "" && b.Verifier == ""
}

// CorrelationChannel carries a Binding from the login redirect to the
// callback through the user agent.
type CorrelationChannel interface {
	// Save writes the binding to the response.
	Save(w http.ResponseWriter, b Binding) error

	// Load reads the binding from the request. A request without a binding
	// returns a zero Binding and no error. A binding that cannot be read
	// returns oidc.ErrMissingBinding.
	Load(req *http.Request) (Binding, error)

	// Clear removes the binding from the user agent.
	Clear(w http.ResponseWriter)
}
