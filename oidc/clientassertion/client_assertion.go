// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"crypto"
	"fmt"
	"time"

	"github.com/authkit/authflow/jwt"
	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-uuid"
)

const (
	// JWTTypeParam is the client_assertion_type for JWT client assertions.
	JWTTypeParam = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// DefaultLifetime is how long a serialized assertion is valid.
	DefaultLifetime = 5 * time.Minute
)

// JWT signs client assertions and JWT bearer grant assertions for one client.
// It's safe for concurrent use.
type JWT struct {
	signer   jose.Signer
	issuer   string
	subject  string
	audience []string
	lifetime time.Duration
	now      func() time.Time
	genID    func() (string, error)
}

// NewJWTWithKey creates a JWT signed by key (private_key_jwt). key must match
// alg: an RSA key for RS* and PS*, an ECDSA key on the algorithm's curve for
// ES*, and an ed25519.PrivateKey for EdDSA.
//
// Supported options:
//   - WithKeyID
//   - WithHeaders
//   - WithIssuer
//   - WithSubject
//   - WithLifetime
//   - WithNow
func NewJWTWithKey(clientID string, audience []string, alg jwt.Alg, key crypto.Signer, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithKey"
	var errs *multierror.Error
	if err := checkKey(alg, key); err != nil {
		errs = multierror.Append(errs, err)
	}
	j, err := newJWT(clientID, audience, jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key}, errs, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

// NewJWTWithSecret creates a JWT signed with the client secret
// (client_secret_jwt). The secret must be at least as long as the
// algorithm's digest.
//
// Supported options are the same as NewJWTWithKey.
func NewJWTWithSecret(clientID string, audience []string, alg HMACAlg, secret string, opt ...Option) (*JWT, error) {
	const op = "NewJWTWithSecret"
	var errs *multierror.Error
	if err := alg.checkSecret(secret); err != nil {
		errs = multierror.Append(errs, err)
	}
	j, err := newJWT(clientID, audience, jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: []byte(secret)}, errs, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return j, nil
}

func newJWT(clientID string, audience []string, key jose.SigningKey, errs *multierror.Error, opt ...Option) (*JWT, error) {
	opts := getAssertionOpts(opt...)
	if clientID == "" {
		errs = multierror.Append(errs, ErrMissingClientID)
	}
	if len(audience) == 0 {
		errs = multierror.Append(errs, ErrMissingAudience)
	}
	if opts.errs != nil {
		errs = multierror.Append(errs, opts.errs.Errors...)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	headers := make(map[jose.HeaderKey]interface{}, len(opts.withHeaders)+1)
	for k, v := range opts.withHeaders {
		headers[jose.HeaderKey(k)] = v
	}
	if opts.withKeyID != "" {
		headers["kid"] = opts.withKeyID
	}
	signer, err := jose.NewSigner(key, (&jose.SignerOptions{ExtraHeaders: headers}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigner, err)
	}

	j := &JWT{
		signer:   signer,
		issuer:   clientID,
		subject:  clientID,
		audience: append([]string(nil), audience...),
		lifetime: opts.withLifetime,
		now:      opts.withNow,
		genID:    uuid.GenerateUUID,
	}
	if opts.withIssuer != "" {
		j.issuer = opts.withIssuer
	}
	if opts.withSubject != "" {
		j.subject = opts.withSubject
	}
	return j, nil
}

// Serialize signs a new assertion. Each call has its own "jti" and validity
// window starting now.
func (j *JWT) Serialize() (string, error) {
	const op = "JWT.Serialize"
	if j == nil || j.signer == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}
	jti, err := j.genID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate jti: %w", op, err)
	}
	now := j.now().UTC()
	claims := josejwt.Claims{
		Issuer:    j.issuer,
		Subject:   j.subject,
		Audience:  j.audience,
		Expiry:    josejwt.NewNumericDate(now.Add(j.lifetime)),
		NotBefore: josejwt.NewNumericDate(now.Add(-time.Second)),
		IssuedAt:  josejwt.NewNumericDate(now),
		ID:        jti,
	}
	signed, err := josejwt.Signed(j.signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}
