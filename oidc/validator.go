// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/authkit/authflow/jwt"
)

// ValidationContext is what an id_token is checked against.
type ValidationContext struct {
	Issuer      string
	Audiences   []string
	Nonce       string
	MaxAge      time.Duration
	SigningAlgs []jwt.Alg
	Now         func() time.Time
}

// TokenValidator validates the id_token of a newly issued token. Replace the
// default with WithTokenValidator.
type TokenValidator interface {
	ValidateToken(ctx context.Context, t *Token, keys *jose.JSONWebKeySet, vc ValidationContext) error
}

// IDTokenValidator is the default TokenValidator. It verifies the id_token's
// signature with the provider's keys, its registered claims, and its at_hash
// against the access token.
type IDTokenValidator struct{}

// ValidateToken implements TokenValidator.
func (IDTokenValidator) ValidateToken(ctx context.Context, t *Token, keys *jose.JSONWebKeySet, vc ValidationContext) error {
	const op = "IDTokenValidator.ValidateToken"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.IDToken == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingIDToken)
	}
	ks, err := jwt.NewJSONWebKeySet(keys)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	v, err := jwt.NewValidator(ks, jwt.WithRequiredClaims("sub", "iat", "exp"))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	raw := string(t.IDToken)
	claims, err := v.Validate(ctx, raw, jwt.Expected{
		Issuer:            vc.Issuer,
		Audiences:         vc.Audiences,
		Nonce:             vc.Nonce,
		MaxAge:            vc.MaxAge,
		SigningAlgorithms: vc.SigningAlgs,
		Now:               vc.Now,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if t.AccessToken == "" {
		return nil
	}
	alg, err := jwt.ParseAlg(raw, vc.SigningAlgs...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := jwt.ValidateAccessTokenHash(alg, claims, string(t.AccessToken)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
