// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local keys; fetching keys is
// the caller's concern.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// staticKeySet verifies signatures with a fixed list of public keys.
type staticKeySet struct {
	keys *oidc.StaticKeySet
}

// ParseJWKS parses a JSON Web Key Set document.
func ParseJWKS(data []byte) (*jose.JSONWebKeySet, error) {
	const op = "jwt.ParseJWKS"
	var jwks jose.JSONWebKeySet
	if err := json.Unmarshal(data, &jwks); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
	}
	return &jwks, nil
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using the
// public keys of jwks. Private keys in the set are reduced to their public
// halves and symmetric keys are skipped.
func NewJSONWebKeySet(jwks *jose.JSONWebKeySet) (KeySet, error) {
	const op = "jwt.NewJSONWebKeySet"
	if jwks == nil {
		return nil, fmt.Errorf("%s: missing key set: %w", op, ErrNilParameter)
	}
	keys := make([]crypto.PublicKey, 0, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub := k.Public()
		if !pub.Valid() {
			continue
		}
		keys = append(keys, pub.Key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s: no signing keys in key set: %w", op, ErrInvalidKey)
	}
	return &staticKeySet{keys: &oidc.StaticKeySet{PublicKeys: keys}}, nil
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using PEM-encoded public keys.
// The given publicKeys must be of PEM-encoded x509 certificate or PKIX public key forms.
func NewStaticKeySet(publicKeys []string) (KeySet, error) {
	const op = "jwt.NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: missing public keys: %w", op, ErrInvalidParameter)
	}
	parsed := make([]crypto.PublicKey, 0, len(publicKeys))
	for _, k := range publicKeys {
		key, err := parsePublicKeyPEM([]byte(k))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		parsed = append(parsed, key)
	}
	return &staticKeySet{keys: &oidc.StaticKeySet{PublicKeys: parsed}}, nil
}

// VerifySignature parses the given JWT, verifies its signature and returns
// the claims in its payload. The given JWT must be of the JWS compact
// serialization form.
func (ks *staticKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	const op = "staticKeySet.VerifySignature"
	payload, err := ks.keys.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}
	allClaims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &allClaims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	return allClaims, nil
}

// parsePublicKeyPEM is used to parse RSA, ECDSA and Ed25519 public keys from
// PEMs.
func parsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	const op = "jwt.parsePublicKeyPEM"
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: data does not contain a PEM block: %w", op, ErrInvalidKey)
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidKey, err)
		}
		rawKey = cert.PublicKey
	}
	switch k := rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%s: unsupported public key type %T: %w", op, rawKey, ErrInvalidKey)
	}
}
