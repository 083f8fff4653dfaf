// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"

	"github.com/authkit/authflow/oidc"
)

// SessionTokenFlow exchanges a session token obtained from a primary
// authentication for an authorization code, without a browser, and the code
// for a token.
type SessionTokenFlow struct {
	base
	fc *oidc.FlowContext
}

// NewSessionTokenFlow creates a flow for c. The client's configuration must
// have a RedirectURL.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewSessionTokenFlow(c *oidc.Client, opt ...Option) *SessionTokenFlow {
	f := &SessionTokenFlow{}
	f.setup(f, c, getFlowOpts(opt...), func() { f.fc = nil })
	return f
}

// Start sends an authorization request carrying sessionToken and exchanges
// the code from the provider's redirect. The options are those of
// oidc.NewFlowContext.
func (f *SessionTokenFlow) Start(ctx context.Context, sessionToken string, opt ...oidc.Option) (*oidc.Token, error) {
	const op = "SessionTokenFlow.Start"
	if sessionToken == "" {
		return nil, fmt.Errorf("%s: session token is empty: %w", op, ErrInvalidParameter)
	}
	fc, err := oidc.NewFlowContext(opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	gen := f.begin(func() { f.fc = fc })

	u, err := authorizeURL(ctx, f.client, fc, map[string]string{"sessionToken": sessionToken})
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	f.customize(u)
	redirect, err := f.client.CaptureRedirect(ctx, u.String())
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	code, err := codeFromRedirect(redirect, fc)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	r, err := oidc.NewAuthorizationCodeRequest(code, f.client.Config().RedirectURL, fc)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	t, err := f.client.Exchange(ctx, r)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if err := f.complete(gen, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}
