// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import "errors"

var (
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrNilParameter           = errors.New("nil parameter")
	ErrUnsupportedAlg         = errors.New("unsupported signing algorithm")
	ErrMalformedToken         = errors.New("malformed token")
	ErrInvalidKey             = errors.New("invalid key")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidIssuer          = errors.New("invalid issuer")
	ErrInvalidSubject         = errors.New("invalid subject")
	ErrInvalidID              = errors.New("invalid jti")
	ErrInvalidAudience        = errors.New("invalid audience")
	ErrInvalidAuthorizedParty = errors.New("invalid authorized party")
	ErrInvalidNonce           = errors.New("invalid nonce")
	ErrMissingClaim           = errors.New("missing required claim")
	ErrExpiredToken           = errors.New("token is expired")
	ErrNotYetValid            = errors.New("token is not yet valid")
	ErrIssuedAtTooFarInFuture = errors.New("issued at is too far in the future")
	ErrMaxAgeExceeded         = errors.New("max_age exceeded")
	ErrInvalidAtHash          = errors.New("invalid at_hash")
)
