// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/singleflight"
)

const discoveryKey = "discovery"

// Provider is the relying party for one OIDC provider using the
// authorization code flow with PKCE. It lazily discovers the provider's
// metadata on first use and caches it for its lifetime.
//
// See Provider.Done() which must be called to release provider resources.
type Provider struct {
	config   *Config
	client   *http.Client
	logger   hclog.Logger
	requests RequestStore
	session  *SessionStore

	requestTTL time.Duration
	nowFunc    func() time.Time

	group singleflight.Group

	mu sync.RWMutex
	pc *providerContext

	// backgroundCtx is the context used by the provider for background
	// activities like discovery and refreshing the JWKs key set.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities.
	backgroundCtxCancel context.CancelFunc
}

// providerContext is everything discovery yields. It is immutable once
// stored.
type providerContext struct {
	provider *oidc.Provider
	metadata *ProviderMetadata
	client   *ClientRegistration
}

// NewProvider creates a Provider for the config. It makes no requests to the
// provider; discovery happens on first use.
//
// Supported options:
//   - WithLogger
//   - WithRequestStore
//   - WithSessionStore
//   - WithRequestTTL
//   - WithNow
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)
	if opts.withRequestTTL <= 0 {
		return nil, fmt.Errorf("%s: request ttl must be greater than zero: %w", op, ErrInvalidParameter)
	}
	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	requests := opts.withRequestStore
	if requests == nil {
		requests, err = NewMemoryRequestStore(WithRequestTTL(opts.withRequestTTL), WithNow(opts.withNowFunc))
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create request store: %w", op, err)
		}
	}
	session := opts.withSessionStore
	if session == nil {
		session = NewSessionStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		config:              c,
		client:              client,
		logger:              opts.withLogger,
		requests:            requests,
		session:             session,
		requestTTL:          opts.withRequestTTL,
		nowFunc:             opts.withNowFunc,
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's config.
func (p *Provider) Config() *Config {
	return p.config
}

// Session returns the provider's session store.
func (p *Provider) Session() *SessionStore {
	return p.session
}

// Metadata returns the provider's discovered metadata. The first call makes
// an http request to the issuer; later calls return the same value without
// one. Concurrent first calls share a single request. A failed discovery is
// not cached.
func (p *Provider) Metadata(ctx context.Context) (*ProviderMetadata, error) {
	const op = "Provider.Metadata"
	pc, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc.metadata, nil
}

// Client returns the client registration bound to the provider's metadata.
// See Metadata for its caching behavior.
func (p *Provider) Client(ctx context.Context) (*ClientRegistration, error) {
	const op = "Provider.Client"
	pc, err := p.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc.client, nil
}

// HTTPClient returns the http client used for requests to the provider.
func (p *Provider) HTTPClient() *http.Client {
	return p.client
}

func (p *Provider) load(ctx context.Context) (*providerContext, error) {
	const op = "Provider.load"
	if pc := p.cached(); pc != nil {
		return pc, nil
	}
	ch := p.group.DoChan(discoveryKey, func() (interface{}, error) {
		if pc := p.cached(); pc != nil {
			return pc, nil
		}
		p.logger.Debug("discovering provider", "issuer", p.config.Issuer)
		// discovery runs on the background ctx so a caller that gives up
		// doesn't fail the other waiters.
		provider, md, err := discover(oidc.ClientContext(p.backgroundCtx, p.client), p.config.Issuer)
		if err != nil {
			p.logger.Debug("provider discovery failed", "issuer", p.config.Issuer, "error", err)
			return nil, err
		}
		reg, err := NewClientRegistration(p.config, md)
		if err != nil {
			return nil, err
		}
		if !md.SupportsPKCE() {
			p.logger.Warn("provider does not advertise the S256 code challenge method", "issuer", md.Issuer)
		}
		pc := &providerContext{
			provider: provider,
			metadata: md,
			client:   reg,
		}
		p.mu.Lock()
		p.pc = pc
		p.mu.Unlock()
		p.logger.Debug("provider discovered", "issuer", md.Issuer)
		return pc, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(*providerContext), nil
	}
}

func (p *Provider) cached() *providerContext {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pc
}

// now returns the current time using the optional timeFn
func (p *Provider) now() time.Time {
	if p.nowFunc != nil {
		return p.nowFunc()
	}
	return time.Now() // fallback to this default
}

// providerOptions is the set of available options for a Provider
type providerOptions struct {
	withLogger       hclog.Logger
	withRequestStore RequestStore
	withSessionStore *SessionStore
	withRequestTTL   time.Duration
	withNowFunc      func() time.Time
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withLogger:     hclog.NewNullLogger(),
		withRequestTTL: DefaultRequestExpiry,
	}
}

// getProviderOpts gets the defaults and applies the opt overrides passed in.
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithRequestStore provides an optional RequestStore for a Provider. The
// default is a MemoryRequestStore.
//
// Valid for: Provider
func WithRequestStore(s RequestStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok && s != nil {
			o.withRequestStore = s
		}
	}
}

// WithSessionStore provides an optional SessionStore for a Provider.
//
// Valid for: Provider
func WithSessionStore(s *SessionStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok && s != nil {
			o.withSessionStore = s
		}
	}
}
