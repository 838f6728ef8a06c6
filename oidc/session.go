// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"sync"
)

// SessionStore holds the token set of the single signed in session. It is
// safe for concurrent use; the last Set wins.
type SessionStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Set replaces the current session.
func (s *SessionStore) Set(t *Token) error {
	const op = "SessionStore.Set"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	cp := t.copy()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = cp
	return nil
}

// Get returns a copy of the current session, if any.
func (s *SessionStore) Get() (*Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, false
	}
	return s.token.copy(), true
}

// Clear removes the current session.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
}
