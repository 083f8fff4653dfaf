// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/jwt"
)

func TestIDTokenValidator_ValidateToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	key, other := TestGenerateRSAKey(t), TestGenerateRSAKey(t)
	keys := TestJWKS(t, "key-1", key)
	now := time.Now()

	idToken := func(signer *rsa.PrivateKey, drop string, extra map[string]interface{}) IDToken {
		claims := map[string]interface{}{
			"iss":     "https://idp.example.com",
			"sub":     "alice@example.com",
			"aud":     "client",
			"iat":     now.Unix(),
			"exp":     now.Add(time.Hour).Unix(),
			"nonce":   "n-1",
			"at_hash": TestAccessTokenHash("at"),
		}
		delete(claims, drop)
		for k, v := range extra {
			claims[k] = v
		}
		return IDToken(TestSignJWT(t, signer, jwt.RS256, claims, "key-1"))
	}
	vc := ValidationContext{
		Issuer:    "https://idp.example.com",
		Audiences: []string{"client"},
		Nonce:     "n-1",
	}

	tests := []struct {
		name      string
		token     *Token
		vc        ValidationContext
		wantIsErr error
	}{
		{
			name:  "valid",
			token: &Token{AccessToken: "at", IDToken: idToken(key, "", nil)},
			vc:    vc,
		},
		{
			name:  "no-access-token",
			token: &Token{IDToken: idToken(key, "at_hash", nil)},
			vc:    vc,
		},
		{
			name:      "nil-token",
			vc:        vc,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "no-id-token",
			token:     &Token{AccessToken: "at"},
			vc:        vc,
			wantIsErr: ErrMissingIDToken,
		},
		{
			name:      "missing-sub",
			token:     &Token{AccessToken: "at", IDToken: idToken(key, "sub", nil)},
			vc:        vc,
			wantIsErr: jwt.ErrMissingClaim,
		},
		{
			name:      "replayed-nonce",
			token:     &Token{AccessToken: "at", IDToken: idToken(key, "", map[string]interface{}{"nonce": "n-0"})},
			vc:        vc,
			wantIsErr: jwt.ErrInvalidNonce,
		},
		{
			name:      "swapped-access-token",
			token:     &Token{AccessToken: "someone-elses", IDToken: idToken(key, "", nil)},
			vc:        vc,
			wantIsErr: jwt.ErrInvalidAtHash,
		},
		{
			name:      "unexpected-alg",
			token:     &Token{AccessToken: "at", IDToken: idToken(key, "", nil)},
			vc:        ValidationContext{SigningAlgs: []jwt.Alg{jwt.ES256}},
			wantIsErr: jwt.ErrUnsupportedAlg,
		},
		{
			name:      "unknown-key",
			token:     &Token{AccessToken: "at", IDToken: idToken(other, "", nil)},
			vc:        vc,
			wantIsErr: jwt.ErrInvalidSignature,
		},
		{
			name:      "expired",
			token:     &Token{AccessToken: "at", IDToken: idToken(key, "", map[string]interface{}{"exp": now.Add(-time.Hour).Unix()})},
			vc:        vc,
			wantIsErr: jwt.ErrExpiredToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			err := IDTokenValidator{}.ValidateToken(ctx, tt.token, keys, tt.vc)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
		})
	}
}
