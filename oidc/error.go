// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrNotFound                   = errors.New("not found")
	ErrExpiredRequest             = errors.New("request is expired")
	ErrRequestConsumed            = errors.New("request already consumed")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrIDTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrLoginFailed                = errors.New("login failed")
	ErrEndSessionNotSupported     = errors.New("provider does not support end session")

	// ErrDiscovery means the provider's metadata could not be fetched or is
	// missing required endpoints. A later call may succeed.
	ErrDiscovery = errors.New("provider discovery failed")

	// ErrConfiguration means required static configuration is missing or
	// invalid.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrMissingBinding means the verifier/state saved when the authorization
	// request was issued was not presented, is unknown, or has expired. The
	// user can recover by starting a new login.
	ErrMissingBinding = errors.New("missing authorization request binding")

	// ErrStateMismatch means the callback does not belong to an authorization
	// request issued by this relying party. Callers must not reveal this
	// detail to the user agent.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrCodeExchange means the authorization code could not be redeemed:
	// the provider rejected it, or the request was already consumed.
	ErrCodeExchange = errors.New("authorization code exchange failed")
)
