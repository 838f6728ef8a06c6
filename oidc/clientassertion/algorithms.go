// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto/rsa"
	"fmt"
)

type (
	// HSAlgorithm is an HMAC signature algorithm, used for client_secret_jwt.
	HSAlgorithm string
	// RSAlgorithm is an RSA signature algorithm, used for private_key_jwt.
	RSAlgorithm string
)

// Signing algorithms as defined by RFC 7518.
// See: https://tools.ietf.org/html/rfc7518#section-3.1
const (
	HS256 HSAlgorithm = "HS256"
	HS384 HSAlgorithm = "HS384"
	HS512 HSAlgorithm = "HS512"
	RS256 RSAlgorithm = "RS256"
	RS384 RSAlgorithm = "RS384"
	RS512 RSAlgorithm = "RS512"
)

// hsMinSecretLen is the shortest secret, in bytes, for each HMAC algorithm:
// the size of its hash output (RFC 7518 section 3.2).
var hsMinSecretLen = map[HSAlgorithm]int{
	HS256: 32,
	HS384: 48,
	HS512: 64,
}

// minRSAKeyBits is the smallest RSA modulus accepted (RFC 7518 section 3.3).
const minRSAKeyBits = 2048

// Validate checks that a is supported and the secret is long enough for it.
func (a HSAlgorithm) Validate(secret string) error {
	const op = "HSAlgorithm.Validate"
	minLen, ok := hsMinSecretLen[a]
	switch {
	case !ok:
		return fmt.Errorf("%s: %w %q for client secret", op, ErrUnsupportedAlgorithm, a)
	case len(secret) < minLen:
		return fmt.Errorf("%s: %w: %q needs at least %d bytes", op, ErrInvalidSecretLength, a, minLen)
	}
	return nil
}

// Validate checks that a is supported and the key is usable with it.
func (a RSAlgorithm) Validate(key *rsa.PrivateKey) error {
	const op = "RSAlgorithm.Validate"
	switch a {
	case RS256, RS384, RS512:
	default:
		return fmt.Errorf("%s: %w %q for RSA key", op, ErrUnsupportedAlgorithm, a)
	}
	switch {
	case key == nil:
		return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
	case key.N == nil || key.N.BitLen() < minRSAKeyBits:
		return fmt.Errorf("%s: %w: needs at least %d bits", op, ErrInvalidKeySize, minRSAKeyBits)
	}
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
