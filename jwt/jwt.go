// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package jwt validates signed JWTs, such as OIDC ID tokens and JWT access
// tokens, against a KeySet and a set of expected claim values. Each failed
// check returns its own sentinel error.
package jwt

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway defines the amount of leeway that matters when validating the
// time based claims: exp, nbf, iat and auth_time.
const DefaultLeeway = 1 * time.Minute

// Validator validates JSON Web Tokens (JWT) by providing signature
// verification and claims set validation.
type Validator struct {
	keySet KeySet
	opts   validatorOptions
}

// NewValidator returns a Validator that uses the given KeySet to verify JWT signatures.
//
// Supported options:
//   - WithNormalizedAudiences
//   - WithRequiredClaims
func NewValidator(keySet KeySet, opt ...Option) (*Validator, error) {
	const op = "jwt.NewValidator"
	if keySet == nil {
		return nil, fmt.Errorf("%s: keySet must not be nil: %w", op, ErrNilParameter)
	}
	return &Validator{
		keySet: keySet,
		opts:   getValidatorOpts(opt...),
	}, nil
}

// Expected defines the expected claims values to assert when validating a JWT.
// For claims that involve validation of the JWT with respect to time, leeway
// fields are provided to account for potential clock skew.
type Expected struct {
	// The expected JWT "iss" (issuer) claim value. If empty, validation is skipped.
	Issuer string

	// The expected JWT "sub" (subject) claim value. If empty, validation is skipped.
	Subject string

	// The expected JWT "jti" (JWT ID) claim value. If empty, validation is skipped.
	ID string

	// The list of expected JWT "aud" (audience) claim values to match against.
	// The JWT claim will be considered valid if it matches any of the expected
	// audiences. If empty, validation is skipped.
	Audiences []string

	// The expected "azp" (authorized party) claim value. If empty, validation
	// is skipped.
	AuthorizedParty string

	// The expected "nonce" claim value. If empty, validation is skipped.
	Nonce string

	// MaxAge, when positive, requires an "auth_time" claim no older than
	// MaxAge (plus leeway).
	MaxAge time.Duration

	// SigningAlgorithms provides the list of expected JWS "alg" (algorithm) header
	// parameter values to match against. The JWS header parameter will be considered
	// valid if it matches any of the expected signing algorithms. The following
	// algorithms are supported: RS256, RS384, RS512, ES256, ES384, ES512, PS256,
	// PS384, PS512, EdDSA. If empty, defaults to RS256.
	SigningAlgorithms []Alg

	// Leeway applied to every time based claim. A zero value will default to
	// DefaultLeeway; a negative value disables leeway.
	Leeway time.Duration

	// Now provides the current time. If nil, time.Now is used.
	Now func() time.Time
}

// Validate validates JWTs of the JWS compact serialization form.
//
// The given JWT is considered valid if:
//  1. Its signature is successfully verified.
//  2. Its claims set and header parameter values match what's given by Expected.
//  3. It's valid with respect to the current time. This means that the current
//     time must be within the times (inclusive) given by the "nbf" (not before)
//     and "exp" (expiration) claims and after the time given by the "iat"
//     (issued at) claim, with configurable leeway.
//
// Validate returns the claims of a valid token.
func (v *Validator) Validate(ctx context.Context, token string, expected Expected) (map[string]interface{}, error) {
	const op = "Validator.Validate"
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%s: token must not be empty: %w", op, ErrInvalidParameter)
	}

	algs := expected.SigningAlgorithms
	if len(algs) == 0 {
		algs = []Alg{RS256}
	}
	if err := SupportedSigningAlgorithm(algs...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := ParseAlg(token, algs...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := v.keySet.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims := gjwt.MapClaims(raw)

	if err := v.validateClaims(claims, expected); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return raw, nil
}

// ParseAlg returns the JWS "alg" header of token, failing with
// ErrUnsupportedAlg when it's not one of algs. With no algs, every supported
// algorithm is allowed.
func ParseAlg(token string, algs ...Alg) (Alg, error) {
	const op = "jwt.ParseAlg"
	if len(algs) == 0 {
		for a := range supportedAlgorithms {
			algs = append(algs, a)
		}
	}
	allowed := make([]jose.SignatureAlgorithm, 0, len(algs))
	for _, a := range algs {
		allowed = append(allowed, jose.SignatureAlgorithm(a))
	}
	jws, err := jose.ParseSigned(token, allowed)
	if err != nil {
		if strings.Contains(err.Error(), "unexpected signature algorithm") {
			return "", fmt.Errorf("%s: %w: %w", op, ErrUnsupportedAlg, err)
		}
		return "", fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	if len(jws.Signatures) != 1 {
		return "", fmt.Errorf("%s: expected a single signature: %w", op, ErrMalformedToken)
	}
	return Alg(jws.Signatures[0].Header.Algorithm), nil
}

func (v *Validator) validateClaims(claims gjwt.MapClaims, expected Expected) error {
	const op = "Validator.validateClaims"
	now := time.Now
	if expected.Now != nil {
		now = expected.Now
	}
	leeway := expected.Leeway
	switch {
	case leeway == 0:
		leeway = DefaultLeeway
	case leeway < 0:
		leeway = 0
	}
	current := now()

	for _, name := range v.opts.withRequiredClaims {
		if c, ok := claims[name]; !ok || c == nil {
			return fmt.Errorf("%s: %q: %w", op, name, ErrMissingClaim)
		}
	}
	if expected.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != expected.Issuer {
			return fmt.Errorf("%s: %w: got %q", op, ErrInvalidIssuer, iss)
		}
	}
	if expected.Subject != "" {
		sub, _ := claims.GetSubject()
		if sub != expected.Subject {
			return fmt.Errorf("%s: %w", op, ErrInvalidSubject)
		}
	}
	if expected.ID != "" {
		jti, _ := claims["jti"].(string)
		if jti != expected.ID {
			return fmt.Errorf("%s: %w", op, ErrInvalidID)
		}
	}
	if len(expected.Audiences) > 0 {
		aud, err := claims.GetAudience()
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidAudience, err)
		}
		if !v.audienceMatches(aud, expected.Audiences) {
			return fmt.Errorf("%s: %w", op, ErrInvalidAudience)
		}
	}
	if expected.AuthorizedParty != "" {
		if azp, ok := claims["azp"].(string); ok && azp != expected.AuthorizedParty {
			return fmt.Errorf("%s: %w", op, ErrInvalidAuthorizedParty)
		}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%s: exp: %w: %w", op, ErrMalformedToken, err)
	}
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return fmt.Errorf("%s: iat: %w: %w", op, ErrMalformedToken, err)
	}
	nbf, err := claims.GetNotBefore()
	if err != nil {
		return fmt.Errorf("%s: nbf: %w: %w", op, ErrMalformedToken, err)
	}
	if exp == nil && iat == nil {
		return fmt.Errorf("%s: exp or iat claim is required: %w", op, ErrMissingClaim)
	}
	if exp != nil && current.After(exp.Add(leeway)) {
		return fmt.Errorf("%s: %w", op, ErrExpiredToken)
	}
	if nbf != nil && current.Add(leeway).Before(nbf.Time) {
		return fmt.Errorf("%s: %w", op, ErrNotYetValid)
	}
	if iat != nil && current.Add(leeway).Before(iat.Time) {
		return fmt.Errorf("%s: %w", op, ErrIssuedAtTooFarInFuture)
	}

	if expected.Nonce != "" {
		nonce, _ := claims["nonce"].(string)
		if subtle.ConstantTimeCompare([]byte(nonce), []byte(expected.Nonce)) != 1 {
			return fmt.Errorf("%s: %w", op, ErrInvalidNonce)
		}
	}

	if expected.MaxAge > 0 {
		authTime, err := numericDate(claims, "auth_time")
		if err != nil {
			return fmt.Errorf("%s: auth_time: %w: %w", op, ErrMalformedToken, err)
		}
		if authTime == nil {
			return fmt.Errorf("%s: auth_time is required with max_age: %w", op, ErrMissingClaim)
		}
		if current.After(authTime.Add(expected.MaxAge).Add(leeway)) {
			return fmt.Errorf("%s: %w", op, ErrMaxAgeExceeded)
		}
	}
	return nil
}

func (v *Validator) audienceMatches(got, want []string) bool {
	for _, w := range want {
		if v.opts.withNormalizedAudiences {
			w = strings.TrimSuffix(w, "/")
		}
		for _, g := range got {
			if v.opts.withNormalizedAudiences {
				g = strings.TrimSuffix(g, "/")
			}
			if g == w {
				return true
			}
		}
	}
	return false
}

func numericDate(claims gjwt.MapClaims, name string) (*gjwt.NumericDate, error) {
	raw, ok := claims[name]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case float64:
		return gjwt.NewNumericDate(time.Unix(int64(v), 0)), nil
	case int64:
		return gjwt.NewNumericDate(time.Unix(v, 0)), nil
	default:
		return nil, fmt.Errorf("%s has invalid type %T", name, raw)
	}
}

// ValidateAccessTokenHash checks the "at_hash" claim of verified ID token
// claims against accessToken, using the hash paired with the ID token's
// signing alg. A missing at_hash is not an error.
func ValidateAccessTokenHash(alg Alg, claims map[string]interface{}, accessToken string) error {
	const op = "jwt.ValidateAccessTokenHash"
	atHash, ok := claims["at_hash"].(string)
	if !ok || atHash == "" {
		return nil
	}
	h, err := hashForAlg(alg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !h.Available() {
		return fmt.Errorf("%s: hash for %q unavailable: %w", op, alg, ErrUnsupportedAlg)
	}
	hasher := h.New()
	_, _ = hasher.Write([]byte(accessToken))
	sum := hasher.Sum(nil)
	want := base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
	if subtle.ConstantTimeCompare([]byte(want), []byte(atHash)) != 1 {
		return fmt.Errorf("%s: %w", op, ErrInvalidAtHash)
	}
	return nil
}
