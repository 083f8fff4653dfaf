// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TokenInfo is an introspection response (RFC 7662).
type TokenInfo struct {
	Active    bool
	Scope     string
	ClientID  string
	Username  string
	TokenType string
	Subject   string
	ExpiresAt time.Time

	// Claims holds every member of the response.
	Claims map[string]interface{}
}

// Introspect asks the provider about one of the token's values.
func (c *Client) Introspect(ctx context.Context, t *Token, kind TokenKind) (*TokenInfo, error) {
	const op = "Client.Introspect"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	value := t.Value(kind)
	if value == "" {
		return nil, fmt.Errorf("%s: %s: %w", op, kind, ErrMissingToken)
	}
	meta, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if meta.IntrospectionEndpoint == "" {
		return nil, fmt.Errorf("%s: introspection_endpoint: %w", op, ErrMissingEndpoint)
	}
	form := url.Values{
		"token":           {value},
		"token_type_hint": {string(kind)},
	}
	if id := t.Context.ClientSettings[SettingClientID]; id != "" {
		form.Set("client_id", id)
	}
	var claims map[string]interface{}
	if err := c.PostForm(ctx, meta.IntrospectionEndpoint, form, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrIntrospectionFailed, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%s: empty response: %w", op, ErrInvalidResponse)
	}
	info := &TokenInfo{Claims: claims}
	info.Active, _ = claims["active"].(bool)
	info.Scope, _ = claims["scope"].(string)
	info.ClientID, _ = claims["client_id"].(string)
	info.Username, _ = claims["username"].(string)
	info.TokenType, _ = claims["token_type"].(string)
	info.Subject, _ = claims["sub"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		info.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return info, nil
}

// UserInfo gets the user info claims of the token's user, unmarshaled into
// claims. When the token has an id_token, the response's "sub" must match
// the id_token's.
func (c *Client) UserInfo(ctx context.Context, t *Token, claims interface{}) error {
	const op = "Client.UserInfo"
	if t == nil || t.AccessToken == "" {
		return fmt.Errorf("%s: access token: %w", op, ErrMissingToken)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	meta, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if meta.UserinfoEndpoint == "" {
		return fmt.Errorf("%s: userinfo_endpoint: %w", op, ErrMissingEndpoint)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.UserinfoEndpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	t.SetAuthHeader(req)
	var raw json.RawMessage
	if err := c.Do(req, &raw); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	var sub struct {
		Subject string `json:"sub"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
	}
	if t.IDToken != "" {
		var idClaims struct {
			Subject string `json:"sub"`
		}
		if err := t.IDToken.Claims(&idClaims); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if sub.Subject != idClaims.Subject {
			return fmt.Errorf("%s: user info subject %q doesn't match id_token subject %q: %w", op, sub.Subject, idClaims.Subject, ErrUserInfoFailed)
		}
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return nil
}
