// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/tacotsubo/authcode/oidc"
	"github.com/tacotsubo/authcode/oidc/callback"
)

// server wires one oidc.Provider to the http routes.
type server struct {
	logger   hclog.Logger
	provider *oidc.Provider
	router   chi.Router
}

func newServer(cfg *Config, logger hclog.Logger, opt ...oidc.Option) (*server, error) {
	const op = "newServer"
	pc, err := cfg.providerConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := append([]oidc.Option{
		oidc.WithLogger(logger.Named("oidc")),
		oidc.WithRequestTTL(cfg.RequestTTL),
	}, opt...)
	p, err := oidc.NewProvider(pc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashKey, blockKey, err := cfg.cookieKeys()
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ch, err := callback.NewCookieChannel(hashKey, blockKey,
		callback.WithCookieMaxAge(cfg.RequestTTL+time.Minute),
		callback.WithCookieSecure(cfg.CookieSecure),
	)
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &server{
		logger:   logger,
		provider: p,
	}
	login, err := callback.Login(p, ch, s.errorResponse)
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	authCode, err := callback.AuthCode(p, ch, s.successResponse, s.errorResponse)
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logout, err := callback.Logout(p, ch, "/", oidc.WithPostLogoutRedirectURL(cfg.PostLogoutRedirectURL))
	if err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Get("/", s.status)
	r.Get("/connect", login)
	r.Get("/login", login)
	r.Get("/callback", authCode)
	r.Post("/callback", authCode)
	r.Get("/disconnect", logout)
	r.Get("/logout", logout)
	s.router = r
	return s, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	s.router.ServeHTTP(w, req)
}

// Close stops the provider's background work.
func (s *server) Close() {
	s.provider.Done()
}

// tokenResponse is the TokenSet handed back to the caller. oidc token types
// redact themselves when marshaled, so the raw values are copied out here and
// only ever written to the response body.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	IDToken      string     `json:"id_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type"`
	Expiry       *time.Time `json:"expiry,omitempty"`
}

func newTokenResponse(t *oidc.Token) tokenResponse {
	r := tokenResponse{
		AccessToken:  string(t.AccessToken()),
		IDToken:      string(t.IDToken()),
		RefreshToken: string(t.RefreshToken()),
		TokenType:    t.TokenType(),
	}
	if exp := t.Expiry(); !exp.IsZero() {
		r.Expiry = &exp
	}
	return r
}

// sessionStatus is what GET / reports about the signed in user.
type sessionStatus struct {
	tokenResponse
	Expired bool                   `json:"expired"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
}

func (s *server) status(w http.ResponseWriter, req *http.Request) {
	t, ok := s.provider.Session().Get()
	if !ok {
		writeJSON(w, struct{}{})
		return
	}
	st := sessionStatus{
		tokenResponse: newTokenResponse(t),
		Expired:       t.IsExpired(),
	}
	if t.IDToken() != "" {
		if err := t.IDToken().Claims(&st.Claims); err != nil {
			s.logger.Warn("unable to read id_token claims", "request_id", middleware.GetReqID(req.Context()), "error", err)
		}
	}
	writeJSON(w, &st)
}

func (s *server) successResponse(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
	s.logger.Debug("signed in", "request_id", middleware.GetReqID(req.Context()))
	writeJSON(w, newTokenResponse(t))
}

// writeJSON writes v with a 200. Bodies carry tokens, so they must not be
// cached.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) errorResponse(state string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	reqID := middleware.GetReqID(req.Context())
	switch {
	case errors.Is(e, oidc.ErrMissingBinding):
		s.logger.Warn("callback without a usable login", "request_id", reqID, "error", e)
		http.Error(w, "login expired or was started elsewhere, restart it at /connect", http.StatusBadRequest)
	case errors.Is(e, oidc.ErrLoginFailed) && r != nil:
		s.logger.Warn("provider rejected login", "request_id", reqID, "provider_error", r.Error, "provider_error_description", r.Description)
		http.Error(w, "authorization failed", http.StatusUnauthorized)
	case errors.Is(e, oidc.ErrStateMismatch), errors.Is(e, oidc.ErrCodeExchange), errors.Is(e, oidc.ErrLoginFailed):
		s.logger.Warn("authorization failed", "request_id", reqID, "error", e)
		http.Error(w, "authorization failed", http.StatusUnauthorized)
	default:
		s.logger.Error("request failed", "request_id", reqID, "error", e)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// requestLogger logs each request at debug. Query strings carry codes and
// states, so only the path is logged.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)
		s.logger.Debug("request",
			"request_id", middleware.GetReqID(req.Context()),
			"method", req.Method,
			"path", req.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
