// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"

	"github.com/authkit/authflow/oidc"
)

// JWTBearerFlow is the JWT bearer authorization grant (RFC 7523), which
// exchanges a signed assertion for a token.
type JWTBearerFlow struct {
	base
}

// NewJWTBearerFlow creates a flow for c.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewJWTBearerFlow(c *oidc.Client, opt ...Option) *JWTBearerFlow {
	f := &JWTBearerFlow{}
	f.setup(f, c, getFlowOpts(opt...), nil)
	return f
}

// Start exchanges the signed assertion, requesting the client's scopes.
func (f *JWTBearerFlow) Start(ctx context.Context, assertion string) (*oidc.Token, error) {
	const op = "JWTBearerFlow.Start"
	return f.exchange(ctx, op, func(cfg *oidc.Config) (*oidc.TokenRequest, error) {
		return oidc.NewJWTBearerRequest(assertion, cfg.ScopeString())
	})
}

// StartWithAssertion signs a, such as a *clientassertion.JWT, and exchanges
// it.
func (f *JWTBearerFlow) StartWithAssertion(ctx context.Context, a oidc.AssertionSerializer) (*oidc.Token, error) {
	const op = "JWTBearerFlow.StartWithAssertion"
	if a == nil {
		return nil, fmt.Errorf("%s: assertion is nil: %w", op, ErrInvalidParameter)
	}
	assertion, err := a.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to sign assertion: %w", op, err)
	}
	return f.Start(ctx, assertion)
}
