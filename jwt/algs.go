// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
)

// Alg represents asymmetric signing algorithms
type Alg string

const (
	// JOSE asymmetric signing algorithm values as defined by RFC 7518.
	//
	// See: https://tools.ietf.org/html/rfc7518#section-3.1
	RS256 Alg = "RS256" // RSASSA-PKCS-v1.5 using SHA-256
	RS384 Alg = "RS384" // RSASSA-PKCS-v1.5 using SHA-384
	RS512 Alg = "RS512" // RSASSA-PKCS-v1.5 using SHA-512
	ES256 Alg = "ES256" // ECDSA using P-256 and SHA-256
	ES384 Alg = "ES384" // ECDSA using P-384 and SHA-384
	ES512 Alg = "ES512" // ECDSA using P-521 and SHA-512
	PS256 Alg = "PS256" // RSASSA-PSS using SHA256 and MGF1-SHA256
	PS384 Alg = "PS384" // RSASSA-PSS using SHA384 and MGF1-SHA384
	PS512 Alg = "PS512" // RSASSA-PSS using SHA512 and MGF1-SHA512
	EdDSA Alg = "EdDSA" // Ed25519 using SHA-512
)

var supportedAlgorithms = map[Alg]crypto.Hash{
	RS256: crypto.SHA256,
	RS384: crypto.SHA384,
	RS512: crypto.SHA512,
	ES256: crypto.SHA256,
	ES384: crypto.SHA384,
	ES512: crypto.SHA512,
	PS256: crypto.SHA256,
	PS384: crypto.SHA384,
	PS512: crypto.SHA512,
	EdDSA: crypto.SHA512,
}

// SupportedSigningAlgorithm returns an error if any of the given Algs
// are not supported signing algorithms.
func SupportedSigningAlgorithm(algs ...Alg) error {
	const op = "jwt.SupportedSigningAlgorithm"
	for _, a := range algs {
		if _, ok := supportedAlgorithms[a]; !ok {
			return fmt.Errorf("%s: %w %q", op, ErrUnsupportedAlg, a)
		}
	}
	return nil
}

// hashForAlg returns the hash function paired with a signing algorithm, as
// used by at_hash and c_hash.
func hashForAlg(a Alg) (crypto.Hash, error) {
	const op = "jwt.hashForAlg"
	h, ok := supportedAlgorithms[a]
	if !ok {
		return 0, fmt.Errorf("%s: %w %q", op, ErrUnsupportedAlg, a)
	}
	return h, nil
}
