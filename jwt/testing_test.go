// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key"

var (
	priv  *rsa.PrivateKey
	priv2 *rsa.PrivateKey
)

func init() {
	// Generate keys once; RSA generation is slow.
	var err error
	priv, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	priv2, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
}

func testSignJWT(t *testing.T, key interface{}, alg Alg, claims map[string]interface{}) string {
	t.Helper()
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKeyID),
	)
	require.NoError(err)
	raw, err := josejwt.Signed(sig).Claims(claims).Serialize()
	require.NoError(err)
	return raw
}

func testJWKS(t *testing.T, pub interface{}) *jose.JSONWebKeySet {
	t.Helper()
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{Key: pub, KeyID: testKeyID, Use: "sig"}},
	}
}

func testPublicPEM(t *testing.T, pub interface{}) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func testECDSAKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}
