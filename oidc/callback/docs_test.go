// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback_test

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/tacotsubo/authcode/oidc"
	"github.com/tacotsubo/authcode/oidc/callback"
)

func Example() {
	// Create a new Config
	pc, err := oidc.NewConfig(
		"https://your_issuer/",
		"your_client_id",
		"your_client_secret",
		"http://localhost:3000/callback",
	)
	if err != nil {
		// handle error
	}

	// Create a provider
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// The binding between a login and its callback is kept in cookies.
	ch, err := callback.NewCookieChannel(
		securecookie.GenerateRandomKey(32),
		securecookie.GenerateRandomKey(32),
	)
	if err != nil {
		// handle error
	}

	// A function to handle successful attempts.
	successFn := func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/", http.StatusFound)
	}
	// A function to handle errors and failed attempts.
	errorFn := func(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		switch {
		case r != nil:
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(r)
		case errors.Is(e, oidc.ErrMissingBinding):
			http.Error(w, "login expired, please try again", http.StatusBadRequest)
		default:
			http.Error(w, "authorization failed", http.StatusUnauthorized)
		}
	}

	login, err := callback.Login(p, ch, errorFn)
	if err != nil {
		// handle error
	}
	authCode, err := callback.AuthCode(p, ch, successFn, errorFn)
	if err != nil {
		// handle error
	}
	logout, err := callback.Logout(p, ch, "/", oidc.WithPostLogoutRedirectURL("http://localhost:3000/"))
	if err != nil {
		// handle error
	}

	http.HandleFunc("/login", login)
	http.HandleFunc("/callback", authCode)
	http.HandleFunc("/logout", logout)
}
