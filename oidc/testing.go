// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/jwt"
)

// TestGenerateRSAKey will generate a 2048 bit test RSA key.
func TestGenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

// TestSignJWT will bundle the provided claims into a test signed JWT, with
// keyID as its "kid" header when not empty.
func TestSignJWT(t *testing.T, key crypto.Signer, alg jwt.Alg, claims map[string]interface{}, keyID string) string {
	t.Helper()
	raw, err := signJWT(key, alg, claims, keyID)
	require.NoError(t, err)
	return raw
}

func signJWT(key crypto.Signer, alg jwt.Alg, claims map[string]interface{}, keyID string) (string, error) {
	const op = "signJWT"
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: jose.JSONWebKey{Key: key, KeyID: keyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	raw, err := josejwt.Signed(sig).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

// TestJWKS returns a key set of the public halves of keys, with keyID as the
// "kid" of the first key.
func TestJWKS(t *testing.T, keyID string, keys ...crypto.Signer) *jose.JSONWebKeySet {
	t.Helper()
	set := &jose.JSONWebKeySet{}
	for i, k := range keys {
		jwk := jose.JSONWebKey{Key: k.Public(), Use: "sig"}
		if i == 0 {
			jwk.KeyID = keyID
		}
		set.Keys = append(set.Keys, jwk)
	}
	return set
}

// TestAccessTokenHash returns the at_hash claim value of an RS256 signed
// id_token issued with accessToken.
func TestAccessTokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
