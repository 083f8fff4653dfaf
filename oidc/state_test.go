// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

func TestNewFlowContext(t *testing.T) {
	t.Parallel()
	now := time.Now()
	verifier, err := NewCodeVerifier()
	require.NoError(t, err)

	tests := []struct {
		name      string
		opts      []Option
		check     func(t *testing.T, fc *FlowContext)
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "defaults",
			check: func(t *testing.T, fc *FlowContext) {
				assert := assert.New(t)
				assert.True(strings.HasPrefix(fc.State, "st_"))
				assert.True(strings.HasPrefix(fc.Nonce, "n_"))
				assert.NotNil(fc.PKCE)
				assert.False(fc.IsExpired())
			},
		},
		{
			name: "all-options",
			opts: []Option{
				WithState("ABC123"),
				WithNonce("nonce"),
				WithPKCE(verifier),
				WithMaxAge(time.Minute),
				WithACRValues("phr"),
				WithPrompts(Login, Consent),
				WithLoginHint("alice@example.com"),
				WithUILocales(language.English, language.French),
				WithAdditionalParameters(map[string]string{"k": "v"}),
				WithNow(func() time.Time { return now }),
				WithExpiry(time.Minute),
			},
			check: func(t *testing.T, fc *FlowContext) {
				assert := assert.New(t)
				assert.Equal("ABC123", fc.State)
				assert.Equal("nonce", fc.Nonce)
				assert.Same(verifier, fc.PKCE)
				assert.Equal(time.Minute, fc.MaxAge)
				assert.Equal([]string{"phr"}, fc.ACRValues)
				assert.Equal([]Prompt{Login, Consent}, fc.Prompts)
				assert.Equal("alice@example.com", fc.LoginHint)
				assert.Equal([]language.Tag{language.English, language.French}, fc.UILocales)
				assert.Equal(map[string]string{"k": "v"}, fc.AdditionalParameters)
				assert.Equal(now.Add(time.Minute), fc.Expiration)
			},
		},
		{
			name: "without-pkce",
			opts: []Option{WithoutPKCE()},
			check: func(t *testing.T, fc *FlowContext) {
				assert.Nil(t, fc.PKCE)
			},
		},
		{
			name: "expired",
			opts: []Option{WithNow(func() time.Time { return now.Add(-time.Hour) })},
			check: func(t *testing.T, fc *FlowContext) {
				assert.True(t, fc.IsExpired())
			},
		},
		{
			name:      "equal-state-and-nonce",
			opts:      []Option{WithState("same"), WithNonce("same")},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fc, err := NewFlowContext(tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.Truef(t, errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, fc)
		})
	}
}

func TestCodeVerifier(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	v, err := NewCodeVerifier()
	require.NoError(err)
	assert.GreaterOrEqual(len(v.Verifier()), 43)
	assert.Equal(oauth2.S256ChallengeFromVerifier(v.Verifier()), v.Challenge())
	assert.Equal(S256, v.Method())
	assert.Len(v.AuthCodeOptions(), 2)

	other, err := NewCodeVerifier()
	require.NoError(err)
	assert.NotEqual(v.Verifier(), other.Verifier())
}
