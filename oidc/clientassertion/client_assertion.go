// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package clientassertion mints the signed JWTs a client presents at the
// token endpoint to authenticate itself (RFC 7523 section 2.2). The
// private_key_jwt method signs them with an RSA key and client_secret_jwt with
// an HMAC over the client secret.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#ClientAuthentication
package clientassertion

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-uuid"
)

const (
	// JWTTypeParam is the client_assertion_type sent with every assertion.
	// https://www.rfc-editor.org/rfc/rfc7523.html#section-2.2
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a serialized assertion is valid.
	DefaultLifetime = 5 * time.Minute

	// notBeforeLeeway backdates "nbf" for providers whose clock lags ours.
	notBeforeLeeway = time.Second
)

// JWT mints client assertions for one client and audience. The signer is
// built once by NewJWT; each Serialize signs a fresh set of claims with a new
// "jti". A JWT is safe for concurrent use.
type JWT struct {
	clientID string
	audience []string
	lifetime time.Duration
	headers  map[string]string

	// exactly one of key and secret is set
	alg    jose.SignatureAlgorithm
	key    *rsa.PrivateKey
	secret string

	signer jose.Signer
	genID  func() (string, error)
	now    func() time.Time
}

// NewJWT returns a JWT for clientID. The audience is normally the provider's
// token endpoint.
//
// Supported Options:
//   - WithClientSecret
//   - WithRSAKey
//   - WithKeyID
//   - WithHeaders
//   - WithLifetime
//   - WithNow
//
// Exactly one of WithRSAKey or WithClientSecret is required.
func NewJWT(clientID string, audience []string, opt ...Option) (*JWT, error) {
	const op = "NewJWT"
	j := &JWT{
		clientID: clientID,
		audience: audience,
		lifetime: DefaultLifetime,
		headers:  map[string]string{},
		genID:    uuid.GenerateUUID,
		now:      time.Now,
	}
	var errs []error
	for _, o := range opt {
		if o == nil {
			continue
		}
		errs = append(errs, o(j))
	}
	errs = append(errs, j.validate())
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	signer, err := jose.NewSigner(j.signingKey(), j.signerOptions())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrCreatingSigner, err)
	}
	j.signer = signer
	return j, nil
}

// Serialize signs and returns a new assertion.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	id, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate jti: %w", op, err)
	}
	now := j.now().UTC()
	claims := jwt.Claims{
		ID:        id,
		Issuer:    j.clientID,
		Subject:   j.clientID,
		Audience:  j.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-notBeforeLeeway)),
		Expiry:    jwt.NewNumericDate(now.Add(j.lifetime)),
	}
	raw, err := jwt.Signed(j.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: unable to sign assertion: %w", op, err)
	}
	return raw, nil
}

// validate reports every missing or conflicting setting at once.
func (j *JWT) validate() error {
	var errs []error
	if j.clientID == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if len(j.audience) == 0 {
		errs = append(errs, ErrMissingAudience)
	}
	if j.alg == "" {
		errs = append(errs, ErrMissingAlgorithm)
	}
	switch {
	case j.key == nil && j.secret == "":
		errs = append(errs, ErrMissingKeyOrSecret)
	case j.key != nil && j.secret != "":
		errs = append(errs, ErrBothKeyAndSecret)
	}
	return errors.Join(errs...)
}

func (j *JWT) signingKey() jose.SigningKey {
	if j.key != nil {
		return jose.SigningKey{Algorithm: j.alg, Key: j.key}
	}
	return jose.SigningKey{Algorithm: j.alg, Key: []byte(j.secret)}
}

func (j *JWT) signerOptions() *jose.SignerOptions {
	opts := &jose.SignerOptions{ExtraHeaders: make(map[jose.HeaderKey]interface{}, len(j.headers))}
	for k, v := range j.headers {
		opts.ExtraHeaders[jose.HeaderKey(k)] = v
	}
	return opts.WithType("JWT")
}
