// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/errgroup"

	"github.com/authkit/authflow/internal/strutils"
	"github.com/authkit/authflow/jwt"
)

// tokenResponse is the token endpoint's JSON response.
type tokenResponse struct {
	TokenType       string      `json:"token_type"`
	AccessToken     string      `json:"access_token"`
	RefreshToken    string      `json:"refresh_token,omitempty"`
	IDToken         string      `json:"id_token,omitempty"`
	DeviceSecret    string      `json:"device_secret,omitempty"`
	IssuedTokenType string      `json:"issued_token_type,omitempty"`
	Scope           string      `json:"scope,omitempty"`
	ExpiresIn       json.Number `json:"expires_in,omitempty"`
}

func (r *tokenResponse) token(c *Config, requestedScope string, issuedAt time.Time) (*Token, error) {
	const op = "tokenResponse.token"
	if r.AccessToken == "" {
		return nil, fmt.Errorf("%s: missing access_token: %w", op, ErrInvalidResponse)
	}
	var expiresIn time.Duration
	if r.ExpiresIn != "" {
		secs, err := strconv.ParseInt(string(r.ExpiresIn), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid expires_in %q: %w", op, r.ExpiresIn, ErrInvalidResponse)
		}
		expiresIn = time.Duration(secs) * time.Second
	}
	scope := r.Scope
	if scope == "" {
		scope = requestedScope
	}
	id, err := NewID(WithPrefix("tok"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Token{
		ID:              id,
		TokenType:       r.TokenType,
		AccessToken:     AccessToken(r.AccessToken),
		RefreshToken:    RefreshToken(r.RefreshToken),
		IDToken:         IDToken(r.IDToken),
		DeviceSecret:    DeviceSecret(r.DeviceSecret),
		IssuedTokenType: r.IssuedTokenType,
		Scope:           strutils.SplitScopes(scope),
		IssuedAt:        issuedAt,
		ExpiresIn:       expiresIn,
		Context: TokenContext{
			Issuer:         c.Issuer,
			ClientSettings: c.ClientSettings(),
		},
	}, nil
}

// Exchange sends a token request and validates the issued token.
//
// The key set is fetched concurrently with the token request, and the
// id_token is validated only once both have completed. A failed token
// request is returned unchanged whatever the key set outcome. When the key
// set couldn't be fetched and the response carries an id_token, the error
// wraps jwt.ErrInvalidKey.
func (c *Client) Exchange(ctx context.Context, r *TokenRequest) (*Token, error) {
	const op = "Client.Exchange"
	if r == nil {
		return nil, fmt.Errorf("%s: token request is nil: %w", op, ErrNilParameter)
	}
	cfg := c.currentConfig()
	endpoint := r.Endpoint
	if endpoint == "" {
		meta, err := c.OpenIDConfiguration(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		endpoint = meta.TokenEndpoint
	}

	var (
		tk      *Token
		keys    *jose.JSONWebKeySet
		keysErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		var err error
		tk, err = c.requestToken(ctx, cfg, endpoint, r)
		return err
	})
	g.Go(func() error {
		keys, keysErr = c.JWKS(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if tk.IDToken == "" {
		return tk, nil
	}
	if keysErr != nil {
		c.logger.Warn("id_token present but jwks unavailable", "error", keysErr)
		return nil, fmt.Errorf("%s: %w: %w: %w", op, ErrIDTokenVerificationFailed, jwt.ErrInvalidKey, keysErr)
	}
	vc := ValidationContext{
		Issuer:      cfg.Issuer,
		Audiences:   append([]string{cfg.ClientID}, cfg.Audiences...),
		Nonce:       r.Nonce,
		MaxAge:      r.MaxAge,
		SigningAlgs: cfg.SigningAlgs(),
		Now:         c.clock.Now,
	}
	if err := c.validator.ValidateToken(ctx, tk, keys, vc); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIDTokenVerificationFailed, err)
	}
	return tk, nil
}

func (c *Client) requestToken(ctx context.Context, cfg *Config, endpoint string, r *TokenRequest) (*Token, error) {
	const op = "Client.requestToken"
	form := r.form(cfg)
	c.logger.Debug("token request", "grant_type", r.GrantType, "endpoint", endpoint)
	var resp tokenResponse
	if err := c.PostForm(ctx, endpoint, form, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	tk, err := resp.token(cfg, form.Get("scope"), c.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}
