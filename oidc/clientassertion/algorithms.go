// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/authkit/authflow/jwt"
)

// HMACAlg is a signing algorithm for assertions made with a client secret
// (client_secret_jwt).
type HMACAlg string

const (
	HS256 HMACAlg = "HS256"
	HS384 HMACAlg = "HS384"
	HS512 HMACAlg = "HS512"
)

// minSecretLen is the digest size of each HMACAlg.
var minSecretLen = map[HMACAlg]int{
	HS256: 32,
	HS384: 48,
	HS512: 64,
}

func (a HMACAlg) checkSecret(secret string) error {
	const op = "HMACAlg.checkSecret"
	want, ok := minSecretLen[a]
	switch {
	case !ok:
		return fmt.Errorf("%s: %w %q for a client secret", op, ErrUnsupportedAlgorithm, a)
	case len(secret) < want:
		return fmt.Errorf("%s: %w: %s needs %d bytes, got %d", op, ErrInvalidSecretLength, a, want, len(secret))
	}
	return nil
}

// curveForAlg pairs each ECDSA algorithm with the one curve it may sign with.
var curveForAlg = map[jwt.Alg]elliptic.Curve{
	jwt.ES256: elliptic.P256(),
	jwt.ES384: elliptic.P384(),
	jwt.ES512: elliptic.P521(),
}

// checkKey reports whether key can produce alg signatures.
func checkKey(alg jwt.Alg, key crypto.Signer) error {
	const op = "checkKey"
	if key == nil {
		return fmt.Errorf("%s: %w", op, ErrNilPrivateKey)
	}
	if err := jwt.SupportedSigningAlgorithm(alg); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUnsupportedAlgorithm, err)
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		switch alg {
		case jwt.RS256, jwt.RS384, jwt.RS512, jwt.PS256, jwt.PS384, jwt.PS512:
			if err := k.Validate(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			return nil
		}
	case *ecdsa.PrivateKey:
		if c, ok := curveForAlg[alg]; ok && k.Curve != nil && c.Params().Name == k.Curve.Params().Name {
			return nil
		}
	case ed25519.PrivateKey:
		if alg == jwt.EdDSA {
			return nil
		}
	default:
		return fmt.Errorf("%s: %w: %T", op, ErrUnsupportedKey, key)
	}
	return fmt.Errorf("%s: %w: %T can't sign %s", op, ErrKeyMismatch, key, alg)
}
