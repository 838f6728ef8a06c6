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

func TestAuthCode(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ch := testNewChannel(t)

	tests := []struct {
		name      string
		p         *oidc.Provider
		ch        CorrelationChannel
		sFn       SuccessResponseFunc
		eFn       ErrorResponseFunc
		wantErr   bool
		wantIsErr error
	}{
		{"valid", p, ch, testSuccessFn, testFailFn, false, nil},
		{"nil-p", nil, ch, testSuccessFn, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-ch", p, nil, testSuccessFn, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-sFn", p, ch, nil, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-eFn", p, ch, testSuccessFn, nil, true, oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := AuthCode(tt.p, tt.ch, tt.sFn, tt.eFn)
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

func Test_AuthCodeResponses(t *testing.T) {
	t.Parallel()

	// testErrFn records the error handed to the ErrorResponseFunc.
	type result struct {
		state   string
		respErr *AuthenErrorResponse
		err     error
	}
	testErrFn := func(got *result) ErrorResponseFunc {
		return func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			got.state, got.respErr, got.err = state, r, e
			testFailFn(state, r, e, w, req)
		}
	}

	tests := []struct {
		name string
		// modify changes the callback request the user agent sends
		modify         func(cookies []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL)
		wantStatusCode int
		wantIsErr      error
		wantRespErr    *AuthenErrorResponse
	}{
		{
			name:           "valid",
			wantStatusCode: http.StatusOK,
		},
		{
			name: "no-cookies",
			modify: func(_ []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL) {
				return nil, cb
			},
			wantStatusCode: http.StatusInternalServerError,
			wantIsErr:      oidc.ErrMissingBinding,
		},
		{
			name: "tampered-cookies",
			modify: func(cookies []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL) {
				out := make([]*http.Cookie, 0, len(cookies))
				for _, c := range cookies {
					out = append(out, &http.Cookie{Name: c.Name, Value: "tampered"})
				}
				return out, cb
			},
			wantStatusCode: http.StatusInternalServerError,
			wantIsErr:      oidc.ErrMissingBinding,
		},
		{
			name: "state-mismatch",
			modify: func(cookies []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL) {
				q := cb.Query()
				q.Set("state", "st_forged")
				cb.RawQuery = q.Encode()
				return cookies, cb
			},
			wantStatusCode: http.StatusInternalServerError,
			wantIsErr:      oidc.ErrStateMismatch,
		},
		{
			name: "provider-error",
			modify: func(cookies []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL) {
				q := url.Values{
					"state":             {cb.Query().Get("state")},
					"error":             {"access_denied"},
					"error_description": {"user said no"},
				}
				cb.RawQuery = q.Encode()
				return cookies, cb
			},
			wantStatusCode: http.StatusUnauthorized,
			wantIsErr:      oidc.ErrLoginFailed,
			wantRespErr:    &AuthenErrorResponse{Error: "access_denied", Description: "user said no"},
		},
		{
			name: "bad-code",
			modify: func(cookies []*http.Cookie, cb *url.URL) ([]*http.Cookie, *url.URL) {
				q := cb.Query()
				q.Set("code", "not-the-code")
				cb.RawQuery = q.Encode()
				return cookies, cb
			},
			wantStatusCode: http.StatusInternalServerError,
			wantIsErr:      oidc.ErrCodeExchange,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			tp := testStartProvider(t)
			p := testNewProvider(t, tp)
			ch := testNewChannel(t)
			login, err := Login(p, ch, testFailFn)
			require.NoError(err)
			var got result
			callback, err := AuthCode(p, ch, testSuccessFn, testErrFn(&got))
			require.NoError(err)

			cookies, cb := testLogin(t, tp, login)
			if tt.modify != nil {
				cookies, cb = tt.modify(cookies, cb)
			}
			rec := httptest.NewRecorder()
			callback(rec, testCallbackRequest(cookies, cb))
			assert.Equal(tt.wantStatusCode, rec.Code)

			// the binding is cleared whatever the outcome
			cleared := rec.Result().Cookies()
			require.Len(cleared, 2)
			for _, c := range cleared {
				assert.Less(c.MaxAge, 0)
			}

			session, ok := p.Session().Get()
			if tt.wantIsErr != nil {
				require.Error(got.err)
				assert.Truef(errors.Is(got.err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, got.err)
				assert.Equal(tt.wantRespErr, got.respErr)
				assert.False(ok)
				if tt.wantRespErr != nil {
					var body AuthenErrorResponse
					require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
					assert.Equal(*tt.wantRespErr, body)
				}
				return
			}
			assert.Equal("login successful", rec.Body.String())
			require.True(ok)
			assert.NotEmpty(session.AccessToken())
			assert.NotEmpty(session.IDToken())
		})
	}
}

func Test_AuthCodeReplay(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ch := testNewChannel(t)
	login, err := Login(p, ch, testFailFn)
	require.NoError(err)
	var gotErr error
	callback, err := AuthCode(p, ch, testSuccessFn, func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
		gotErr = e
		testFailFn(state, r, e, w, req)
	})
	require.NoError(err)

	cookies, cb := testLogin(t, tp, login)
	rec := httptest.NewRecorder()
	callback(rec, testCallbackRequest(cookies, cb))
	require.Equal(http.StatusOK, rec.Code)
	requests := tp.TokenRequests()

	// a user agent that ignores the cleared cookies and replays the callback
	rec = httptest.NewRecorder()
	callback(rec, testCallbackRequest(cookies, cb))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.ErrorIs(gotErr, oidc.ErrCodeExchange)
	assert.Equal(requests, tp.TokenRequests(), "a replay must not reach the token endpoint")
}
