// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opt        []Option
		wantErr    bool
		wantPrefix string
		wantLen    int
	}{
		{
			name:    "no-prefix",
			wantLen: DefaultIDLength,
		},
		{
			name:       "with-prefix",
			opt:        []Option{WithPrefix("alice")},
			wantPrefix: "alice_",
			wantLen:    DefaultIDLength + len("alice_"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewID(tt.opt...)
			if tt.wantErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			if tt.wantPrefix != "" {
				assert.Truef(strings.HasPrefix(got, tt.wantPrefix), "NewID() = %v and wanted prefix %s", got, tt.wantPrefix)
			}
			assert.Equalf(tt.wantLen, len(got), "NewID() = %v, with len of %d and wanted len of %v", got, len(got), tt.wantLen)
		})
	}
}

func Test_WithPrefix(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getIDOpts(WithPrefix("alice"))
	testOpts := idDefaults()
	testOpts.withPrefix = "alice"
	assert.Equal(opts, testOpts)
}

func TestNewState(t *testing.T) {
	t.Parallel()
	t.Run("url-safe", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := NewState()
		require.NoError(err)
		assert.True(strings.HasPrefix(s, "st_"))
		assert.Regexp(`^[A-Za-z0-9_]+$`, s)
	})
	t.Run("unique", func(t *testing.T) {
		require := require.New(t)
		const samples = 10000
		seen := make(map[string]struct{}, samples)
		for i := 0; i < samples; i++ {
			s, err := NewState()
			require.NoError(err)
			_, dup := seen[s]
			require.Falsef(dup, "duplicate state after %d samples", i)
			seen[s] = struct{}{}
		}
	})
}

func TestNewNonce(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	n1, err := NewNonce()
	require.NoError(err)
	n2, err := NewNonce()
	require.NoError(err)
	assert.True(strings.HasPrefix(n1, "n_"))
	assert.NotEqual(n1, n2)
}
