// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"time"

	"github.com/authkit/authflow/internal/strutils"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
	GrantPassword          = "password"
	GrantTokenExchange     = "urn:ietf:params:oauth:grant-type:token-exchange"
	GrantJWTBearer         = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	GrantInteractionCode   = "interaction_code"
)

// Token type identifiers used by token exchange (RFC 8693).
const (
	TokenTypeAccessToken  = "urn:ietf:params:oauth:token-type:access_token"
	TokenTypeRefreshToken = "urn:ietf:params:oauth:token-type:refresh_token"
	TokenTypeIDToken      = "urn:ietf:params:oauth:token-type:id_token"
	TokenTypeJWT          = "urn:ietf:params:oauth:token-type:jwt"
	TokenTypeDeviceSecret = "urn:x-oath:params:oauth:token-type:device-secret"
)

// TokenRequest is a request to the token endpoint. Flows build one with the
// NewXxxRequest functions and pass it to Client.Exchange.
type TokenRequest struct {
	GrantType  string
	Parameters url.Values

	// Endpoint overrides the provider's token_endpoint.
	Endpoint string

	// Nonce and MaxAge are checked against a returned id_token.
	Nonce  string
	MaxAge time.Duration
}

func newTokenRequest(grant string) *TokenRequest {
	return &TokenRequest{
		GrantType:  grant,
		Parameters: url.Values{"grant_type": {grant}},
	}
}

// form returns the encoded body, adding the config's additional parameters
// the request doesn't already set. The config's scopes are not added; each
// grant's builder decides whether a scope is sent.
func (r *TokenRequest) form(c *Config) url.Values {
	form := url.Values{}
	for k, v := range r.Parameters {
		form[k] = append([]string(nil), v...)
	}
	form.Set("grant_type", r.GrantType)
	for _, k := range strutils.SortedKeys(c.AdditionalParameters) {
		if form.Get(k) == "" {
			form.Set(k, c.AdditionalParameters[k])
		}
	}
	return form
}

// NewAuthorizationCodeRequest exchanges an authorization code. The flow
// context supplies the PKCE verifier and the nonce checked in the id_token.
func NewAuthorizationCodeRequest(code, redirectURI string, fc *FlowContext) (*TokenRequest, error) {
	const op = "NewAuthorizationCodeRequest"
	if code == "" {
		return nil, fmt.Errorf("%s: code is empty: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantAuthorizationCode)
	r.Parameters.Set("code", code)
	if redirectURI != "" {
		r.Parameters.Set("redirect_uri", redirectURI)
	}
	if fc != nil {
		if fc.PKCE != nil {
			r.Parameters.Set("code_verifier", fc.PKCE.Verifier())
		}
		r.Nonce = fc.Nonce
		r.MaxAge = fc.MaxAge
	}
	return r, nil
}

// NewInteractionCodeRequest exchanges an interaction code obtained from an
// identity engine remediation.
func NewInteractionCodeRequest(interactionCode string, fc *FlowContext) (*TokenRequest, error) {
	const op = "NewInteractionCodeRequest"
	if interactionCode == "" {
		return nil, fmt.Errorf("%s: interaction code is empty: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantInteractionCode)
	r.Parameters.Set("interaction_code", interactionCode)
	if fc != nil {
		if fc.PKCE != nil {
			r.Parameters.Set("code_verifier", fc.PKCE.Verifier())
		}
		r.Nonce = fc.Nonce
		r.MaxAge = fc.MaxAge
	}
	return r, nil
}

// NewRefreshRequest refreshes t. The client_id and scope recorded in the
// token's context are sent.
func NewRefreshRequest(t *Token) (*TokenRequest, error) {
	const op = "NewRefreshRequest"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	if t.RefreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, &MissingTokenError{Kind: RefreshTokenKind})
	}
	clientID := t.Context.ClientSettings[SettingClientID]
	if clientID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingClientConfiguration)
	}
	r := newTokenRequest(GrantRefreshToken)
	r.Parameters.Set("refresh_token", string(t.RefreshToken))
	r.Parameters.Set("client_id", clientID)
	if scope := t.Context.ClientSettings[SettingScope]; scope != "" {
		r.Parameters.Set("scope", scope)
	}
	return r, nil
}

// NewDeviceCodeRequest polls for the token of a device authorization.
func NewDeviceCodeRequest(deviceCode string) (*TokenRequest, error) {
	const op = "NewDeviceCodeRequest"
	if deviceCode == "" {
		return nil, fmt.Errorf("%s: device code is empty: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantDeviceCode)
	r.Parameters.Set("device_code", deviceCode)
	return r, nil
}

// NewPasswordRequest is a resource owner password credentials request.
func NewPasswordRequest(username, password, scope string) (*TokenRequest, error) {
	const op = "NewPasswordRequest"
	if username == "" {
		return nil, fmt.Errorf("%s: username is empty: %w", op, ErrInvalidParameter)
	}
	if password == "" {
		return nil, fmt.Errorf("%s: password is empty: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantPassword)
	r.Parameters.Set("username", username)
	r.Parameters.Set("password", password)
	if scope != "" {
		r.Parameters.Set("scope", scope)
	}
	return r, nil
}

// TokenExchangeParameters are the inputs of a token exchange (RFC 8693).
type TokenExchangeParameters struct {
	SubjectToken     string
	SubjectTokenType string
	ActorToken       string
	ActorTokenType   string
	Audience         string
	Scope            string
}

// NewTokenExchangeRequest builds a token exchange request.
func NewTokenExchangeRequest(p TokenExchangeParameters) (*TokenRequest, error) {
	const op = "NewTokenExchangeRequest"
	if p.SubjectToken == "" || p.SubjectTokenType == "" {
		return nil, fmt.Errorf("%s: subject token and type are required: %w", op, ErrInvalidParameter)
	}
	if (p.ActorToken == "") != (p.ActorTokenType == "") {
		return nil, fmt.Errorf("%s: actor token and type must be given together: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantTokenExchange)
	r.Parameters.Set("subject_token", p.SubjectToken)
	r.Parameters.Set("subject_token_type", p.SubjectTokenType)
	if p.ActorToken != "" {
		r.Parameters.Set("actor_token", p.ActorToken)
		r.Parameters.Set("actor_token_type", p.ActorTokenType)
	}
	if p.Audience != "" {
		r.Parameters.Set("audience", p.Audience)
	}
	if p.Scope != "" {
		r.Parameters.Set("scope", p.Scope)
	}
	return r, nil
}

// NewJWTBearerRequest exchanges a signed assertion (RFC 7523).
func NewJWTBearerRequest(assertion, scope string) (*TokenRequest, error) {
	const op = "NewJWTBearerRequest"
	if assertion == "" {
		return nil, fmt.Errorf("%s: assertion is empty: %w", op, ErrInvalidParameter)
	}
	r := newTokenRequest(GrantJWTBearer)
	r.Parameters.Set("assertion", assertion)
	if scope != "" {
		r.Parameters.Set("scope", scope)
	}
	return r, nil
}
