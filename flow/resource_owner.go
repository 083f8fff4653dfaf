// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"

	"github.com/authkit/authflow/oidc"
)

// ResourceOwnerFlow is the resource owner password credentials grant.
type ResourceOwnerFlow struct {
	base
}

// NewResourceOwnerFlow creates a flow for c.
//
// Supported options:
//   - WithLogger
//   - WithListener
func NewResourceOwnerFlow(c *oidc.Client, opt ...Option) *ResourceOwnerFlow {
	f := &ResourceOwnerFlow{}
	f.setup(f, c, getFlowOpts(opt...), nil)
	return f
}

// Start exchanges the user's credentials for a token, requesting the
// client's scopes.
func (f *ResourceOwnerFlow) Start(ctx context.Context, username, password string) (*oidc.Token, error) {
	const op = "ResourceOwnerFlow.Start"
	return f.exchange(ctx, op, func(cfg *oidc.Config) (*oidc.TokenRequest, error) {
		return oidc.NewPasswordRequest(username, password, cfg.ScopeString())
	})
}
