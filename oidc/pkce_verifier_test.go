// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeVerifier(t *testing.T) {
	t.Parallel()
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewCodeVerifier()
		require.NoError(err)
		assert.Equal(verifierLen, len(got.Verifier()))
		assert.Regexp(`^[A-Za-z0-9\-._~]+$`, got.Verifier())
		assert.Equal(S256, got.Method())

		challenge, err := CreateCodeChallenge(S256, got.Verifier())
		require.NoError(err)
		assert.Equal(challenge, got.Challenge())
		assert.Len(got.Challenge(), 43)
	})
	t.Run("copy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewCodeVerifier()
		require.NoError(err)
		cp := got.Copy()
		assert.Equal(got, cp)
		assert.NotSame(got, cp)
	})
	t.Run("unique", func(t *testing.T) {
		require := require.New(t)
		const samples = 10000
		seen := make(map[string]struct{}, samples)
		for i := 0; i < samples; i++ {
			v, err := NewCodeVerifier()
			require.NoError(err)
			_, dup := seen[v.Verifier()]
			require.Falsef(dup, "duplicate verifier after %d samples", i)
			seen[v.Verifier()] = struct{}{}
		}
	})
}

func TestCreateCodeChallenge(t *testing.T) {
	t.Parallel()
	calcHash := func(data []byte) string {
		h := sha256.New()
		_, _ = h.Write(data)
		sum := h.Sum(nil)
		return base64.RawURLEncoding.EncodeToString(sum)
	}
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(S256, v.Verifier())
		require.NoError(err)
		assert.Equal(calcHash([]byte(v.Verifier())), challenge)
	})
	t.Run("deterministic", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		c1, err := CreateCodeChallenge(S256, v.Verifier())
		require.NoError(err)
		c2, err := CreateCodeChallenge(S256, v.Verifier())
		require.NoError(err)
		assert.Equal(c1, c2)
	})
	t.Run("rfc7636-appendix-b", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		challenge, err := CreateCodeChallenge(S256, "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
		require.NoError(err)
		assert.Equal("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
	})
	t.Run("invalid-method", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(ChallengeMethod("plain"), v.Verifier())
		require.Error(err)
		assert.Empty(challenge)
		assert.True(errors.Is(err, ErrUnsupportedChallengeMethod))
	})
	t.Run("empty-verifier", func(t *testing.T) {
		assert := assert.New(t)
		_, err := CreateCodeChallenge(S256, "")
		assert.True(errors.Is(err, ErrInvalidParameter))
	})
}
