// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"

	"github.com/authkit/authflow/oidc"
)

// TokenExchangeFlow is the token exchange grant (RFC 8693).
type TokenExchangeFlow struct {
	base
}

// NewTokenExchangeFlow creates a flow for c.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewTokenExchangeFlow(c *oidc.Client, opt ...Option) *TokenExchangeFlow {
	f := &TokenExchangeFlow{}
	f.setup(f, c, getFlowOpts(opt...), nil)
	return f
}

// Start exchanges the subject (and optional actor) token. The client's
// scopes are requested when p has none.
func (f *TokenExchangeFlow) Start(ctx context.Context, p oidc.TokenExchangeParameters) (*oidc.Token, error) {
	const op = "TokenExchangeFlow.Start"
	return f.exchange(ctx, op, func(cfg *oidc.Config) (*oidc.TokenRequest, error) {
		if p.Scope == "" {
			p.Scope = cfg.ScopeString()
		}
		return oidc.NewTokenExchangeRequest(p)
	})
}

// NativeSSOParameters returns the token exchange which signs another
// application on the same device in: t's id_token is the subject and its
// device secret the actor (OpenID Connect Native SSO). audience identifies
// the other application's authorization server.
func NativeSSOParameters(t *oidc.Token, audience string) (oidc.TokenExchangeParameters, error) {
	const op = "flow.NativeSSOParameters"
	switch {
	case t == nil:
		return oidc.TokenExchangeParameters{}, fmt.Errorf("%s: token is nil: %w", op, ErrInvalidParameter)
	case t.IDToken == "":
		return oidc.TokenExchangeParameters{}, fmt.Errorf("%s: %w", op, oidc.ErrMissingIDToken)
	case t.DeviceSecret == "":
		return oidc.TokenExchangeParameters{}, fmt.Errorf("%s: device secret: %w", op, oidc.ErrMissingToken)
	}
	return oidc.TokenExchangeParameters{
		SubjectToken:     string(t.IDToken),
		SubjectTokenType: oidc.TokenTypeIDToken,
		ActorToken:       string(t.DeviceSecret),
		ActorTokenType:   oidc.TokenTypeDeviceSecret,
		Audience:         audience,
	}, nil
}
