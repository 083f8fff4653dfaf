// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import "errors"

var (
	ErrMissingClientID      = errors.New("missing client id")
	ErrMissingAudience      = errors.New("missing audience")
	ErrMissingKeyID         = errors.New("missing key id")
	ErrReservedHeader       = errors.New("header is set by the signer")
	ErrInvalidLifetime      = errors.New("lifetime must be positive")
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrUnsupportedKey       = errors.New("unsupported private key type")
	ErrKeyMismatch          = errors.New("private key doesn't match the signing algorithm")
	ErrInvalidSecretLength  = errors.New("client secret is too short for the algorithm")
	ErrNilPrivateKey        = errors.New("nil private key")
	ErrSigner               = errors.New("unable to create signer")

	// ErrNotInitialized is returned when a JWT wasn't made by NewJWTWithKey
	// or NewJWTWithSecret.
	ErrNotInitialized = errors.New("assertion is not initialized")
)
