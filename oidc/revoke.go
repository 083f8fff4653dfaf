// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"
)

var revokeKinds = map[RevokeType]TokenKind{
	RevokeAccessToken:  AccessTokenKind,
	RevokeRefreshToken: RefreshTokenKind,
	RevokeDeviceSecret: DeviceSecretKind,
}

// Revoke revokes one of the token's values, or with RevokeAll every value the
// token carries.
//
// RevokeAll skips values the token doesn't have; a token with only an
// access token revokes only that. The revocations run concurrently and, if
// any failed, a *RevokeError holding each failure is returned.
//
// Revoking a single absent value fails with a *MissingTokenError, which
// unwraps to ErrMissingRevokableToken.
func (c *Client) Revoke(ctx context.Context, t *Token, typ RevokeType) error {
	const op = "Client.Revoke"
	if t == nil {
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	meta, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if meta.RevocationEndpoint == "" {
		return fmt.Errorf("%s: revocation_endpoint: %w", op, ErrMissingEndpoint)
	}

	if typ != RevokeAll {
		kind, ok := revokeKinds[typ]
		if !ok {
			return fmt.Errorf("%s: unknown revoke type %s: %w", op, typ, ErrInvalidParameter)
		}
		value := t.Value(kind)
		if value == "" {
			return fmt.Errorf("%s: %w", op, &MissingTokenError{Kind: kind, Revocable: true})
		}
		if err := c.revoke(ctx, meta.RevocationEndpoint, t, kind, value); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	var (
		mu   sync.Mutex
		errs = map[RevokeType]error{}
		g    errgroup.Group
	)
	for _, rt := range []RevokeType{RevokeAccessToken, RevokeRefreshToken, RevokeDeviceSecret} {
		rt := rt
		kind := revokeKinds[rt]
		value := t.Value(kind)
		if value == "" {
			continue
		}
		g.Go(func() error {
			if err := c.revoke(ctx, meta.RevocationEndpoint, t, kind, value); err != nil {
				mu.Lock()
				errs[rt] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return &RevokeError{Errors: errs}
	}
	return nil
}

func (c *Client) revoke(ctx context.Context, endpoint string, t *Token, kind TokenKind, value string) error {
	const op = "Client.revoke"
	form := url.Values{
		"token":           {value},
		"token_type_hint": {string(kind)},
	}
	if id := t.Context.ClientSettings[SettingClientID]; id != "" {
		form.Set("client_id", id)
	}
	c.logger.Debug("revoking token", "token_id", t.ID, "kind", kind)
	if err := c.PostForm(ctx, endpoint, form, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
