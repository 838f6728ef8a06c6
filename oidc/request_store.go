// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMaxPendingRequests bounds a MemoryRequestStore.
const DefaultMaxPendingRequests = 10000

// RequestStore correlates issued authorization requests with callbacks. A
// Request may be consumed at most once.
type RequestStore interface {
	// Add stores a pending request keyed by its state.
	Add(ctx context.Context, r *Request) error

	// Consume atomically looks up and removes the request for the state.
	// It returns an error wrapping ErrNotFound if the state was never
	// issued (or has been swept), ErrExpiredRequest if it expired, and
	// ErrRequestConsumed if it was already consumed.
	Consume(ctx context.Context, state string) (*Request, error)
}

// MemoryRequestStore is an in-memory RequestStore. Pending requests are held
// in a size bounded LRU. Consumed states are remembered so a replayed callback
// can be told apart from an unknown one.
//
// Both LRUs are created without a TTL, so no background goroutine outlives the
// store. Instead, Add prunes pending requests that expired more than a TTL ago
// and tombstones older than a TTL. Until then an expired request still reports
// ErrExpiredRequest rather than ErrNotFound.
type MemoryRequestStore struct {
	mu       sync.Mutex
	pending  *expirable.LRU[string, *Request]
	consumed *expirable.LRU[string, time.Time]
	ttl      time.Duration
	skew     time.Duration
	nowFunc  func() time.Time
}

var _ RequestStore = (*MemoryRequestStore)(nil)

// NewMemoryRequestStore creates a new store.
//
// Supported options:
//   - WithRequestTTL
//   - WithMaxPendingRequests
//   - WithExpirySkew
//   - WithNow
func NewMemoryRequestStore(opt ...Option) (*MemoryRequestStore, error) {
	const op = "NewMemoryRequestStore"
	opts := getStoreOpts(opt...)
	switch {
	case opts.withTTL <= 0:
		return nil, fmt.Errorf("%s: ttl must be greater than zero: %w", op, ErrInvalidParameter)
	case opts.withMaxPending <= 0:
		return nil, fmt.Errorf("%s: max pending requests must be greater than zero: %w", op, ErrInvalidParameter)
	}
	return &MemoryRequestStore{
		pending:  expirable.NewLRU[string, *Request](opts.withMaxPending, nil, 0),
		consumed: expirable.NewLRU[string, time.Time](opts.withMaxPending, nil, 0),
		ttl:      opts.withTTL,
		skew:     opts.withExpirySkew,
		nowFunc:  opts.withNowFunc,
	}, nil
}

// Add stores the request. A request whose state is already pending or was
// already consumed is rejected.
func (s *MemoryRequestStore) Add(_ context.Context, r *Request) error {
	const op = "MemoryRequestStore.Add"
	if r == nil {
		return fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == "" {
		return fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	if s.pending.Contains(r.State()) || s.consumed.Contains(r.State()) {
		return fmt.Errorf("%s: duplicate request state: %w", op, ErrInvalidParameter)
	}
	s.pending.Add(r.State(), r)
	return nil
}

// Consume removes and returns the request for the state.
func (s *MemoryRequestStore) Consume(_ context.Context, state string) (*Request, error) {
	const op = "MemoryRequestStore.Consume"
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed.Contains(state) {
		return nil, fmt.Errorf("%s: %w", op, ErrRequestConsumed)
	}
	r, ok := s.pending.Get(state)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	now := s.now()
	s.pending.Remove(state)
	s.consumed.Add(state, now)
	if r.expiration.Before(now.Add(s.skew)) {
		return nil, fmt.Errorf("%s: request %s: %w", op, r.ID(), ErrExpiredRequest)
	}
	return r, nil
}

// prune drops, oldest first, pending requests that expired at least a ttl ago
// and tombstones at least a ttl old. The caller must hold s.mu.
func (s *MemoryRequestStore) prune(now time.Time) {
	for {
		state, r, ok := s.pending.GetOldest()
		if !ok || now.Before(r.expiration.Add(s.ttl)) {
			break
		}
		s.pending.Remove(state)
	}
	for {
		state, at, ok := s.consumed.GetOldest()
		if !ok || now.Before(at.Add(s.ttl)) {
			break
		}
		s.consumed.Remove(state)
	}
}

// Len returns the number of pending requests.
func (s *MemoryRequestStore) Len() int {
	return s.pending.Len()
}

func (s *MemoryRequestStore) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}

// storeOptions is the set of available options for a MemoryRequestStore
type storeOptions struct {
	withTTL        time.Duration
	withMaxPending int
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

func storeDefaults() storeOptions {
	return storeOptions{
		withTTL:        DefaultRequestExpiry,
		withMaxPending: DefaultMaxPendingRequests,
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestTTL provides an optional TTL for pending requests.
//
// Valid for: MemoryRequestStore and Provider
func WithRequestTTL(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *storeOptions:
			v.withTTL = d
		case *providerOptions:
			v.withRequestTTL = d
		}
	}
}

// WithMaxPendingRequests provides an optional bound on pending requests.
//
// Valid for: MemoryRequestStore
func WithMaxPendingRequests(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok {
			o.withMaxPending = n
		}
	}
}
