// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tacotsubo/authcode/oidc"
)

func TestLogin(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ch := testNewChannel(t)

	tests := []struct {
		name      string
		p         *oidc.Provider
		ch        CorrelationChannel
		eFn       ErrorResponseFunc
		wantErr   bool
		wantIsErr error
	}{
		{name: "valid", p: p, ch: ch, eFn: testFailFn},
		{name: "nil-p", ch: ch, eFn: testFailFn, wantErr: true, wantIsErr: oidc.ErrInvalidParameter},
		{name: "nil-ch", p: p, eFn: testFailFn, wantErr: true, wantIsErr: oidc.ErrInvalidParameter},
		{name: "nil-eFn", p: p, ch: ch, wantErr: true, wantIsErr: oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := Login(tt.p, tt.ch, tt.eFn)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

func Test_LoginResponses(t *testing.T) {
	t.Parallel()

	t.Run("redirects-with-binding", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := testStartProvider(t)
		p := testNewProvider(t, tp)
		ch := testNewChannel(t)
		login, err := Login(p, ch, testFailFn, oidc.WithScopes("email"))
		require.NoError(err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/login", nil)
		login(rec, req)
		require.Equal(http.StatusFound, rec.Code)

		loc, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(err)
		q := loc.Query()
		assert.Equal("code", q.Get("response_type"))
		assert.Equal(testClientID, q.Get("client_id"))
		assert.Equal("S256", q.Get("code_challenge_method"))
		assert.Equal("openid email", q.Get("scope"))

		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		b, err := ch.Load(req)
		require.NoError(err)
		assert.Equal(q.Get("state"), b.State)
		challenge, err := oidc.CreateCodeChallenge(oidc.S256, b.Verifier)
		require.NoError(err)
		assert.Equal(q.Get("code_challenge"), challenge)
	})

	t.Run("discovery-failure", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := testStartProvider(t)
		tp.OmitTokenEndpoint()
		p := testNewProvider(t, tp)
		login, err := Login(p, testNewChannel(t), testFailFn)
		require.NoError(err)

		rec := httptest.NewRecorder()
		login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
		assert.Equal(http.StatusInternalServerError, rec.Code)
		assert.Empty(rec.Result().Cookies())
		var got AuthenErrorResponse
		require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal("internal-callback-error", got.Error)
	})
}
