// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/jwt"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	type args struct {
		issuer   string
		clientID string
		opt      []Option
	}
	tests := []struct {
		name      string
		args      args
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid",
			args: args{
				issuer:   "https://example.com",
				clientID: "clientId",
				opt: []Option{
					WithScopes("openid", "email"),
					WithRedirectURL("com.example:/callback"),
					WithLogoutRedirectURL("com.example:/logout"),
					WithAudiences("api://default"),
					WithSigningAlgs(jwt.RS256, jwt.ES256),
					WithAdditionalParameters(map[string]string{"acr_values": "phr"}),
					WithClientAuthentication(ClientSecretAuthentication("secret")),
				},
			},
			want: &Config{
				Issuer:               "https://example.com",
				ClientID:             "clientId",
				Scopes:               []string{"openid", "email"},
				RedirectURL:          "com.example:/callback",
				LogoutRedirectURL:    "com.example:/logout",
				Audiences:            []string{"api://default"},
				SupportedSigningAlgs: []jwt.Alg{jwt.RS256, jwt.ES256},
				AdditionalParameters: map[string]string{"acr_values": "phr"},
				Authentication:       ClientAuthentication{Method: AuthClientSecretPost, Secret: "secret"},
			},
		},
		{
			name: "defaults",
			args: args{issuer: "https://example.com", clientID: "clientId"},
			want: &Config{
				Issuer:   "https://example.com",
				ClientID: "clientId",
				Scopes:   []string{"openid"},
			},
		},
		{
			name:      "missing-issuer",
			args:      args{clientID: "clientId"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "bad-issuer-scheme",
			args:      args{issuer: "ftp://example.com", clientID: "clientId"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "missing-client-id",
			args:      args{issuer: "https://example.com"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "unsupported-alg",
			args:      args{issuer: "https://example.com", clientID: "clientId", opt: []Option{WithSigningAlgs("HS256")}},
			wantErr:   true,
			wantIsErr: ErrUnsupportedAlg,
		},
		{
			name:      "secret-auth-without-secret",
			args:      args{issuer: "https://example.com", clientID: "clientId", opt: []Option{WithClientAuthentication(ClientSecretAuthentication(""))}},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "assertion-auth-without-assertion",
			args:      args{issuer: "https://example.com", clientID: "clientId", opt: []Option{WithClientAuthentication(ClientAssertionAuthentication(nil))}},
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.args.issuer, tt.args.clientID, tt.args.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Validate_reportsAll(t *testing.T) {
	t.Parallel()
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id is empty")
	assert.Contains(t, err.Error(), "issuer is empty")

	var c *Config
	err = c.Validate()
	assert.Truef(t, errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
}

func TestConfig_accessors(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	c := &Config{Issuer: "https://example.com/oauth2/default/", ClientID: "clientId"}
	assert.Equal("https://example.com/oauth2/default"+WellKnownPath, c.DiscoveryEndpoint())
	assert.Equal("openid", c.ScopeString())
	assert.Equal([]jwt.Alg{jwt.RS256}, c.SigningAlgs())
	assert.Equal(map[string]string{SettingClientID: "clientId", SettingScope: "openid"}, c.ClientSettings())

	c.DiscoveryURL = "https://example.com/custom"
	c.Scopes = []string{"openid", "profile"}
	c.RedirectURL = "com.example:/callback"
	assert.Equal("https://example.com/custom", c.DiscoveryEndpoint())
	assert.Equal("openid profile", c.ScopeString())
	assert.Equal("com.example:/callback", c.ClientSettings()[SettingRedirectURI])
}

func TestConfig_Copy(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{
		Issuer:               "https://example.com",
		ClientID:             "clientId",
		Scopes:               []string{"openid"},
		AdditionalParameters: map[string]string{"k": "v"},
	}
	cp := c.Copy()
	assert.Equal(c, cp)
	cp.Scopes[0] = "changed"
	cp.AdditionalParameters["k"] = "changed"
	assert.Equal("openid", c.Scopes[0])
	assert.Equal("v", c.AdditionalParameters["k"])
}
