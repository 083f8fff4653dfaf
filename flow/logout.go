// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/url"

	"github.com/authkit/authflow/oidc"
)

// LogoutFlow is RP-initiated logout. Start returns the end session URL to
// send the user to; Resume checks the post logout redirect.
type LogoutFlow struct {
	base
	state string
}

// NewLogoutFlow creates a flow for c. The post_logout_redirect_uri is the
// configuration's LogoutRedirectURL.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewLogoutFlow(c *oidc.Client, opt ...Option) *LogoutFlow {
	f := &LogoutFlow{}
	f.setup(f, c, getFlowOpts(opt...), func() { f.state = "" })
	return f
}

// Start builds the end session URL for the session idToken belongs to. A
// state is generated unless given with oidc.WithState.
func (f *LogoutFlow) Start(ctx context.Context, idToken oidc.IDToken, opt ...oidc.Option) (*url.URL, error) {
	const op = "LogoutFlow.Start"
	if idToken == "" {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrMissingIDToken)
	}
	fc, err := oidc.NewFlowContext(append([]oidc.Option{oidc.WithoutPKCE()}, opt...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	gen := f.begin(func() { f.state = fc.State })

	md, err := f.client.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if md.EndSessionEndpoint == "" {
		return nil, f.complete(gen, fmt.Errorf("%s: end session endpoint: %w", op, oidc.ErrMissingEndpoint))
	}
	u, err := url.Parse(md.EndSessionEndpoint)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w: %w", op, oidc.ErrInvalidResponse, err))
	}
	cfg := f.client.Config()
	q := u.Query()
	q.Set("id_token_hint", string(idToken))
	q.Set("client_id", cfg.ClientID)
	if cfg.LogoutRedirectURL != "" {
		q.Set("post_logout_redirect_uri", cfg.LogoutRedirectURL)
		q.Set("state", fc.State)
	}
	u.RawQuery = q.Encode()
	f.customize(u)

	if cfg.LogoutRedirectURL == "" {
		// nothing will come back to resume with.
		if err := f.complete(gen, nil); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return u, nil
}

// Resume completes the logout with the post logout redirect.
func (f *LogoutFlow) Resume(ctx context.Context, redirect *url.URL) error {
	const op = "LogoutFlow.Resume"
	f.mu.Lock()
	state, gen := f.state, f.generation
	f.mu.Unlock()
	if state == "" {
		return fmt.Errorf("%s: flow was not started: %w", op, ErrInvalidContext)
	}
	if redirect == nil {
		return f.complete(gen, fmt.Errorf("%s: redirect is nil: %w", op, ErrInvalidParameter))
	}
	if redirect.Query().Get("state") != state {
		return f.complete(gen, fmt.Errorf("%s: %w", op, ErrInvalidState))
	}
	if err := f.complete(gen, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
