// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Refresh exchanges the token's refresh token for a new token, which is
// returned merged with t (see Token.Merged). Concurrent refreshes of the same
// token share one request; tokens are identified by their ID.
//
// Listeners get WillRefresh before the request and DidRefresh after it,
// with a nil replacement on failure. Subscribers get an EventTokenRefreshed
// or EventTokenRefreshFailed event.
func (c *Client) Refresh(ctx context.Context, t *Token) (*Token, error) {
	const op = "Client.Refresh"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	req, err := NewRefreshRequest(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c.refreshes.Do(ctx, refreshKey(t), func(ctx context.Context) (*Token, error) {
		c.listeners.Each(func(l ClientListener) { l.WillRefresh(t) })

		issued, err := c.Exchange(ctx, req)
		var replacement *Token
		if err == nil {
			replacement = issued.Merged(t)
		}

		c.listeners.Each(func(l ClientListener) { l.DidRefresh(t, replacement) })
		if err != nil {
			c.logger.Error("token refresh failed", "token_id", t.ID, "error", err)
			c.publish(Event{Type: EventTokenRefreshFailed, Token: t, Err: err})
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.publish(Event{Type: EventTokenRefreshed, Token: t, Replacement: replacement})
		return replacement, nil
	})
}

// refreshKey identifies a token for refresh coalescing.
func refreshKey(t *Token) string {
	if t.ID != "" {
		return "id:" + t.ID
	}
	sum := sha256.Sum256([]byte(t.RefreshToken))
	return "rt:" + hex.EncodeToString(sum[:])
}

// TokenSource returns an oauth2.TokenSource which hands out t until it
// expires by the client's clock, then refreshes it with Refresh. Each
// replacement is passed to onRefresh, when it's not nil, so it can be
// persisted. The source is safe for concurrent use.
func (c *Client) TokenSource(ctx context.Context, t *Token, onRefresh func(*Token)) oauth2.TokenSource {
	return &refreshingSource{ctx: ctx, c: c, t: t, onRefresh: onRefresh}
}

type refreshingSource struct {
	ctx       context.Context
	c         *Client
	onRefresh func(*Token)

	mu sync.Mutex
	t  *Token
}

// Token implements oauth2.TokenSource.
func (s *refreshingSource) Token() (*oauth2.Token, error) {
	const op = "refreshingSource.Token"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.t == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	if s.t.AccessToken != "" && !s.t.ExpiredAt(s.c.clock.Now()) {
		return s.t.OAuth2Token(), nil
	}
	next, err := s.c.Refresh(s.ctx, s.t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.t = next
	if s.onRefresh != nil {
		s.onRefresh(next)
	}
	return next.OAuth2Token(), nil
}
