// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/storage"
)

func TestToken_Merged(t *testing.T) {
	t.Parallel()
	previous := &Token{
		ID:           "tok_1",
		TokenType:    "Bearer",
		AccessToken:  "A1",
		RefreshToken: "R1",
		IDToken:      "I1",
		DeviceSecret: "D1",
		Scope:        []string{"openid", "offline_access"},
		Context: TokenContext{
			Issuer:         "https://example.com",
			ClientSettings: map[string]string{SettingClientID: "clientId"},
		},
	}

	tests := []struct {
		name      string
		refreshed *Token
		want      *Token
	}{
		{
			name:      "omitted-values-carried-over",
			refreshed: &Token{ID: "tok_2", TokenType: "Bearer", AccessToken: "A2", ExpiresIn: time.Hour},
			want: &Token{
				ID: "tok_1", TokenType: "Bearer", AccessToken: "A2", RefreshToken: "R1", IDToken: "I1", DeviceSecret: "D1",
				Scope: []string{"openid", "offline_access"}, ExpiresIn: time.Hour, Context: previous.Context,
			},
		},
		{
			name:      "new-values-win",
			refreshed: &Token{TokenType: "Bearer", AccessToken: "A2", RefreshToken: "R2", IDToken: "I2", Scope: []string{"openid"}},
			want: &Token{
				ID: "tok_1", TokenType: "Bearer", AccessToken: "A2", RefreshToken: "R2", IDToken: "I2", DeviceSecret: "D1",
				Scope: []string{"openid"}, Context: previous.Context,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got := tt.refreshed.Merged(previous)
			assert.Truef(got.Equal(tt.want), "got %+v", got.secrets())
			assert.Equal("A1", string(previous.AccessToken))
		})
	}

	t.Run("context-is-copied", func(t *testing.T) {
		got := (&Token{AccessToken: "A2"}).Merged(previous)
		got.Context.ClientSettings[SettingClientID] = "changed"
		assert.Equal(t, "clientId", previous.Context.ClientSettings[SettingClientID])
	})

	t.Run("nil-previous", func(t *testing.T) {
		refreshed := &Token{AccessToken: "A2"}
		got := refreshed.Merged(nil)
		assert.True(t, got.Equal(refreshed))
		assert.NotSame(t, refreshed, got)
	})
}

func TestToken_expiry(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tests := []struct {
		name        string
		token       *Token
		wantExpired bool
		wantValid   bool
	}{
		{
			name:      "no-lifetime",
			token:     &Token{AccessToken: "a", IssuedAt: now},
			wantValid: true,
		},
		{
			name:      "valid",
			token:     &Token{AccessToken: "a", IssuedAt: now, ExpiresIn: time.Hour},
			wantValid: true,
		},
		{
			name:        "expired",
			token:       &Token{AccessToken: "a", IssuedAt: now.Add(-2 * time.Hour), ExpiresIn: time.Hour},
			wantExpired: true,
		},
		{
			name:        "within-skew",
			token:       &Token{AccessToken: "a", IssuedAt: now, ExpiresIn: expirySkew / 2},
			wantExpired: true,
		},
		{
			name:  "no-access-token",
			token: &Token{IssuedAt: now, ExpiresIn: time.Hour},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.wantExpired, tt.token.ExpiredAt(now))
			assert.Equal(tt.wantValid, tt.token.Valid())
		})
	}
	var nilToken *Token
	assert.False(t, nilToken.Valid())
}

func TestToken_Value(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tk := &Token{AccessToken: "a", RefreshToken: "r", IDToken: "i", DeviceSecret: "d"}
	assert.Equal("a", tk.Value(AccessTokenKind))
	assert.Equal("r", tk.Value(RefreshTokenKind))
	assert.Equal("i", tk.Value(IDTokenKind))
	assert.Equal("d", tk.Value(DeviceSecretKind))
	assert.Equal("", tk.Value("unknown"))
}

func TestToken_OAuth2Token(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	issued := time.Now()
	tk := &Token{TokenType: "Bearer", AccessToken: "a", RefreshToken: "r", IDToken: "i", IssuedAt: issued, ExpiresIn: time.Minute}
	ot := tk.OAuth2Token()
	assert.Equal("a", ot.AccessToken)
	assert.Equal("r", ot.RefreshToken)
	assert.Equal("i", ot.Extra("id_token"))
	assert.True(ot.Expiry.Equal(issued.Add(time.Minute)))

	req, err := http.NewRequest(http.MethodGet, "https://example.com", nil)
	require.NoError(err)
	tk.SetAuthHeader(req)
	assert.Equal("Bearer a", req.Header.Get("Authorization"))
}

func TestToken_redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk := &Token{AccessToken: "secret-a", RefreshToken: "secret-r", IDToken: "secret-i", DeviceSecret: "secret-d"}
	b, err := json.Marshal(tk)
	require.NoError(err)
	assert.NotContains(string(b), "secret-")
	assert.Contains(string(b), RedactedAccessToken)
	assert.Contains(string(b), RedactedRefreshToken)
	assert.Contains(string(b), RedactedIDToken)
	assert.Contains(string(b), RedactedDeviceSecret)
	assert.Equal(RedactedClientSecret, ClientSecret("s").String())
}

func TestToken_Equal(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	a := &Token{ID: "1", AccessToken: "a"}
	b := &Token{ID: "1", AccessToken: "a"}
	c := &Token{ID: "1", AccessToken: "other"}
	assert.True(a.Equal(b))
	assert.False(a.Equal(c))
	assert.False(a.Equal(nil))
	var n *Token
	assert.True(n.Equal(nil))
}

func TestRevokeType_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("access_token", RevokeAccessToken.String())
	assert.Equal("refresh_token", RevokeRefreshToken.String())
	assert.Equal("device_secret", RevokeDeviceSecret.String())
	assert.Equal("all", RevokeAll.String())
	assert.Equal("RevokeType(9)", RevokeType(9).String())
}

func TestMarshalTokenSecret(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk := &Token{
		ID:           "1",
		TokenType:    "Bearer",
		AccessToken:  "secret-a",
		RefreshToken: "secret-r",
		IDToken:      "secret-i",
		Scope:        []string{"openid"},
		IssuedAt:     time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		ExpiresIn:    time.Hour,
		Context:      TokenContext{Issuer: "https://example.com", ClientSettings: map[string]string{SettingClientID: "client"}},
	}
	store := storage.NewMemoryStore()
	b, err := MarshalTokenSecret(tk)
	require.NoError(err)
	require.NoError(store.Set("token", b))

	stored, err := store.Get("token")
	require.NoError(err)
	got, err := UnmarshalTokenSecret(stored)
	require.NoError(err)
	assert.Truef(got.Equal(tk), "got %+v", got.secrets())

	_, err = MarshalTokenSecret(nil)
	assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	_, err = UnmarshalTokenSecret([]byte(`{"token_type": "Bearer"}`))
	assert.Truef(errors.Is(err, ErrMissingToken), "wanted \"%s\" but got \"%s\"", ErrMissingToken, err)
	_, err = UnmarshalTokenSecret([]byte(`not json`))
	assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
}
