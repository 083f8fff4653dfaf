// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// expirySkew is subtracted from a token's lifetime when deciding whether it
// has expired.
const expirySkew = 10 * time.Second

// TokenKind identifies one of the token strings a Token may carry. The values
// are the OAuth2 token_type_hint names.
type TokenKind string

const (
	AccessTokenKind  TokenKind = "access_token"
	RefreshTokenKind TokenKind = "refresh_token"
	IDTokenKind      TokenKind = "id_token"
	DeviceSecretKind TokenKind = "device_secret"
)

// RevokeType selects what Client.Revoke revokes.
type RevokeType int

const (
	RevokeAccessToken RevokeType = iota
	RevokeRefreshToken
	RevokeDeviceSecret
	// RevokeAll revokes every revokable value the token carries.
	RevokeAll
)

// String returns the token_type_hint of the revoke type.
func (r RevokeType) String() string {
	switch r {
	case RevokeAccessToken:
		return string(AccessTokenKind)
	case RevokeRefreshToken:
		return string(RefreshTokenKind)
	case RevokeDeviceSecret:
		return string(DeviceSecretKind)
	case RevokeAll:
		return "all"
	default:
		return fmt.Sprintf("RevokeType(%d)", int(r))
	}
}

// Client settings keys recorded in a TokenContext.
const (
	SettingClientID    = "client_id"
	SettingRedirectURI = "redirect_uri"
	SettingScope       = "scope"
)

// TokenContext is the data persisted with a token that later refresh and
// revoke calls need.
type TokenContext struct {
	// Issuer is the issuer URL which issued the token.
	Issuer string `json:"issuer"`

	// ClientSettings are the client settings in effect when the token was
	// issued, such as client_id and scope.
	ClientSettings map[string]string `json:"client_settings,omitempty"`
}

func (c TokenContext) clone() TokenContext {
	out := TokenContext{Issuer: c.Issuer}
	if c.ClientSettings != nil {
		out.ClientSettings = make(map[string]string, len(c.ClientSettings))
		for k, v := range c.ClientSettings {
			out.ClientSettings[k] = v
		}
	}
	return out
}

// Token is the result of a token exchange. A Token is never modified after
// it's issued: refreshing produces a new Token.
type Token struct {
	// ID identifies the token across refreshes. Concurrent refreshes of
	// tokens with the same ID are coalesced.
	ID string `json:"id"`

	TokenType    string       `json:"token_type"`
	AccessToken  AccessToken  `json:"access_token"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`
	IDToken      IDToken      `json:"id_token,omitempty"`
	DeviceSecret DeviceSecret `json:"device_secret,omitempty"`

	// IssuedTokenType is set by token exchange responses.
	IssuedTokenType string `json:"issued_token_type,omitempty"`

	Scope     []string      `json:"scope,omitempty"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresIn time.Duration `json:"expires_in"`

	Context TokenContext `json:"context"`
}

// ExpiresAt is the instant the access token expires; zero when the server
// gave no lifetime.
func (t *Token) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.IssuedAt.Add(t.ExpiresIn)
}

// Expired reports whether the access token has expired, allowing for a small
// skew.
func (t *Token) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt is Expired evaluated at now.
func (t *Token) ExpiredAt(now time.Time) bool {
	exp := t.ExpiresAt()
	if exp.IsZero() {
		return false
	}
	return exp.Round(0).Before(now.Add(expirySkew))
}

// Valid reports whether the token has an access token which hasn't expired.
func (t *Token) Valid() bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.Expired()
}

// Value returns the string of the given kind, or "" when absent.
func (t *Token) Value(kind TokenKind) string {
	switch kind {
	case AccessTokenKind:
		return string(t.AccessToken)
	case RefreshTokenKind:
		return string(t.RefreshToken)
	case IDTokenKind:
		return string(t.IDToken)
	case DeviceSecretKind:
		return string(t.DeviceSecret)
	default:
		return ""
	}
}

// OAuth2Token converts t for use with golang.org/x/oauth2.
func (t *Token) OAuth2Token() *oauth2.Token {
	ot := &oauth2.Token{
		AccessToken:  string(t.AccessToken),
		TokenType:    t.TokenType,
		RefreshToken: string(t.RefreshToken),
		Expiry:       t.ExpiresAt(),
	}
	if t.IDToken != "" {
		ot = ot.WithExtra(map[string]interface{}{"id_token": string(t.IDToken)})
	}
	return ot
}

// SetAuthHeader sets the Authorization header of r using the access token.
func (t *Token) SetAuthHeader(r *http.Request) {
	t.OAuth2Token().SetAuthHeader(r)
}

// Merged returns the token produced by refreshing previous into t: values in
// t win, the refresh token, id_token, device secret and scope the server
// omitted are carried over from previous, and previous's ID and context are
// kept.
func (t *Token) Merged(previous *Token) *Token {
	merged := *t
	if previous == nil {
		return &merged
	}
	merged.ID = previous.ID
	merged.Context = previous.Context.clone()
	if merged.RefreshToken == "" {
		merged.RefreshToken = previous.RefreshToken
	}
	if merged.IDToken == "" {
		merged.IDToken = previous.IDToken
	}
	if merged.DeviceSecret == "" {
		merged.DeviceSecret = previous.DeviceSecret
	}
	if len(merged.Scope) == 0 && len(previous.Scope) > 0 {
		merged.Scope = append([]string(nil), previous.Scope...)
	}
	return &merged
}

// Equal reports whether t and other hold the same values.
func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	a, err := json.Marshal(t.secrets())
	if err != nil {
		return false
	}
	b, err := json.Marshal(other.secrets())
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// storedToken is the unredacted form of a Token.
type storedToken struct {
	ID              string        `json:"id"`
	TokenType       string        `json:"token_type"`
	AccessToken     string        `json:"access_token"`
	RefreshToken    string        `json:"refresh_token,omitempty"`
	IDToken         string        `json:"id_token,omitempty"`
	DeviceSecret    string        `json:"device_secret,omitempty"`
	IssuedTokenType string        `json:"issued_token_type,omitempty"`
	Scope           []string      `json:"scope,omitempty"`
	IssuedAt        time.Time     `json:"issued_at"`
	ExpiresIn       time.Duration `json:"expires_in"`
	Context         TokenContext  `json:"context"`
}

func (t *Token) secrets() storedToken {
	return storedToken{
		ID:              t.ID,
		TokenType:       t.TokenType,
		AccessToken:     string(t.AccessToken),
		RefreshToken:    string(t.RefreshToken),
		IDToken:         string(t.IDToken),
		DeviceSecret:    string(t.DeviceSecret),
		IssuedTokenType: t.IssuedTokenType,
		Scope:           t.Scope,
		IssuedAt:        t.IssuedAt.UTC(),
		ExpiresIn:       t.ExpiresIn,
		Context:         t.Context,
	}
}

// MarshalTokenSecret encodes t with its secrets, for a storage.SecretStore.
// Marshaling a Token directly redacts them.
func MarshalTokenSecret(t *Token) ([]byte, error) {
	const op = "MarshalTokenSecret"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(t.secrets())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// UnmarshalTokenSecret decodes a token encoded by MarshalTokenSecret.
func UnmarshalTokenSecret(data []byte) (*Token, error) {
	const op = "UnmarshalTokenSecret"
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidParameter, err)
	}
	if st.AccessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}
	return &Token{
		ID:              st.ID,
		TokenType:       st.TokenType,
		AccessToken:     AccessToken(st.AccessToken),
		RefreshToken:    RefreshToken(st.RefreshToken),
		IDToken:         IDToken(st.IDToken),
		DeviceSecret:    DeviceSecret(st.DeviceSecret),
		IssuedTokenType: st.IssuedTokenType,
		Scope:           st.Scope,
		IssuedAt:        st.IssuedAt,
		ExpiresIn:       st.ExpiresIn,
		Context:         st.Context,
	}, nil
}
