// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/authkit/authflow/oidc"
)

// AuthorizationCodeFlow is the authorization code flow with PKCE. Start
// returns the URL to send the user to; Resume completes the flow with the
// redirect the provider sent the user back with.
type AuthorizationCodeFlow struct {
	base
	fc *oidc.FlowContext
}

// NewAuthorizationCodeFlow creates a flow for c. The client's configuration
// must have a RedirectURL.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewAuthorizationCodeFlow(c *oidc.Client, opt ...Option) *AuthorizationCodeFlow {
	f := &AuthorizationCodeFlow{}
	f.setup(f, c, getFlowOpts(opt...), func() { f.fc = nil })
	return f
}

// FlowContext returns the context of the current authentication, or nil.
func (f *AuthorizationCodeFlow) FlowContext() *oidc.FlowContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fc
}

// Start begins an authentication and returns the authorization URL. The
// options are those of oidc.NewFlowContext: state, nonce and the PKCE
// verifier are generated unless given.
func (f *AuthorizationCodeFlow) Start(ctx context.Context, opt ...oidc.Option) (*url.URL, error) {
	const op = "AuthorizationCodeFlow.Start"
	fc, err := oidc.NewFlowContext(opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	gen := f.begin(func() { f.fc = fc })
	u, err := authorizeURL(ctx, f.client, fc, nil)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	f.customize(u)
	return u, nil
}

// Resume completes the authentication with the redirect URL, exchanging its
// code for a token.
func (f *AuthorizationCodeFlow) Resume(ctx context.Context, redirect *url.URL) (*oidc.Token, error) {
	const op = "AuthorizationCodeFlow.Resume"
	f.mu.Lock()
	fc, gen := f.fc, f.generation
	f.mu.Unlock()
	if fc == nil {
		return nil, fmt.Errorf("%s: flow was not started: %w", op, ErrInvalidContext)
	}
	if fc.IsExpired() {
		return nil, f.complete(gen, fmt.Errorf("%s: context expired: %w", op, ErrInvalidContext))
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
