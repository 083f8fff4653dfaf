// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"golang.org/x/oauth2"
)

// ChallengeMethod is a PKCE code_challenge_method.
type ChallengeMethod string

// S256 is the only challenge method produced by NewCodeVerifier.
const S256 ChallengeMethod = "S256"

// CodeVerifier is a PKCE verifier/challenge pair (RFC 7636).
type CodeVerifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// NewCodeVerifier generates a random verifier and its S256 challenge.
func NewCodeVerifier() (*CodeVerifier, error) {
	const op = "NewCodeVerifier"
	v := oauth2.GenerateVerifier()
	if len(v) < 43 {
		return nil, fmt.Errorf("%s: verifier too short: %w", op, ErrIDGeneratorFailed)
	}
	return &CodeVerifier{
		verifier:  v,
		challenge: oauth2.S256ChallengeFromVerifier(v),
		method:    S256,
	}, nil
}

// Verifier returns the code_verifier.
func (v *CodeVerifier) Verifier() string { return v.verifier }

// Challenge returns the code_challenge.
func (v *CodeVerifier) Challenge() string { return v.challenge }

// Method returns the code_challenge_method.
func (v *CodeVerifier) Method() ChallengeMethod { return v.method }

// AuthCodeOptions returns the authorization request parameters carrying the
// challenge.
func (v *CodeVerifier) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", v.challenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(v.method)),
	}
}
