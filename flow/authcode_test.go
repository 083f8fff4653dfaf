// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/authkit/authflow/oidc"
)

func TestAuthorizationCodeFlow_scenario(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := oidc.StartTestProvider(t)
	p.SetClientCreds("clientId", "")
	c := testClient(t, p)
	l := &testListener{}
	f := NewAuthorizationCodeFlow(c, WithListener(l))

	u, err := f.Start(ctx, oidc.WithState("ABC123"))
	require.NoError(err)
	assert.True(f.IsAuthenticating())
	q := u.Query()
	assert.Equal("ABC123", q.Get("state"))
	assert.Equal("clientId", q.Get("client_id"))
	assert.Equal("code", q.Get("response_type"))
	assert.Equal(testRedirectURL, q.Get("redirect_uri"))
	assert.Equal("openid profile offline_access", q.Get("scope"))
	assert.NotEmpty(q.Get("nonce"))
	assert.NotEmpty(q.Get("code_challenge"))
	assert.Equal(string(oidc.S256), q.Get("code_challenge_method"))

	p.SetExpectedAuthCode("ABCEasyAs123")
	p.SetNonce(q.Get("nonce"))
	redirect, err := url.Parse("com.example:/callback?code=ABCEasyAs123&state=ABC123")
	require.NoError(err)
	tk, err := f.Resume(ctx, redirect)
	require.NoError(err)
	require.NotNil(tk)
	assert.NotEmpty(tk.AccessToken)
	assert.False(f.IsAuthenticating())
	assert.Nil(f.FlowContext())

	started, finished, failed := l.counts()
	assert.Equal(1, started)
	assert.Equal(1, finished)
	assert.Equal(0, failed)
}

func TestAuthorizationCodeFlow_roundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	p := oidc.StartTestProvider(t)
	p.SetExpectedAuthCode("round-trip-code")
	c := testClient(t, p)
	l := &customizingListener{}
	f := NewAuthorizationCodeFlow(c, WithListener(l))

	u, err := f.Start(ctx,
		oidc.WithMaxAge(time.Hour),
		oidc.WithACRValues("phr", "phrh"),
		oidc.WithPrompts(oidc.Login, oidc.Consent),
		oidc.WithLoginHint("alice"),
		oidc.WithUILocales(language.English, language.French),
		oidc.WithAdditionalParameters(map[string]string{"display": "page"}),
	)
	require.NoError(err)
	q := u.Query()
	assert.Equal("3600", q.Get("max_age"))
	assert.Equal("phr phrh", q.Get("acr_values"))
	assert.Equal("login consent", q.Get("prompt"))
	assert.Equal("alice", q.Get("login_hint"))
	assert.Equal("en fr", q.Get("ui_locales"))
	assert.Equal("page", q.Get("display"))
	assert.Equal("value", q.Get("custom"))

	// the provider records the PKCE challenge and nonce from the request.
	redirect, err := c.CaptureRedirect(ctx, u.String())
	require.NoError(err)
	tk, err := f.Resume(ctx, redirect)
	require.NoError(err)
	assert.NotEmpty(tk.IDToken)
	assert.NotEmpty(p.LastForm(oidc.TestTokenPath).Get("code_verifier"))
}

func TestAuthorizationCodeFlow_Resume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := oidc.StartTestProvider(t)
	p.SetExpectedAuthCode("code")
	c := testClient(t, p)

	tests := []struct {
		name        string
		skipStart   bool
		redirect    func(state string) string
		wantIsErr   error
		wantErrCode string
		wantFailure bool
	}{
		{
			name:      "not-started",
			skipStart: true,
			redirect:  func(string) string { return testRedirectURL + "?code=code&state=x" },
			wantIsErr: ErrInvalidContext,
		},
		{
			name:        "state-mismatch",
			redirect:    func(string) string { return testRedirectURL + "?code=code&state=other" },
			wantIsErr:   ErrInvalidState,
			wantFailure: true,
		},
		{
			name: "provider-error",
			redirect: func(s string) string {
				return testRedirectURL + "?error=access_denied&error_description=nope&state=" + s
			},
			wantErrCode: oidc.ErrCodeAccessDenied,
			wantFailure: true,
		},
		{
			name:        "missing-code",
			redirect:    func(s string) string { return testRedirectURL + "?state=" + s },
			wantIsErr:   ErrMissingCode,
			wantFailure: true,
		},
		{
			name:        "bad-code",
			redirect:    func(s string) string { return testRedirectURL + "?code=wrong&state=" + s },
			wantErrCode: oidc.ErrCodeInvalidGrant,
			wantFailure: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			l := &testListener{}
			f := NewAuthorizationCodeFlow(c, WithListener(l))
			var state string
			if !tt.skipStart {
				_, err := f.Start(ctx)
				require.NoError(err)
				state = f.FlowContext().State
			}
			redirect, err := url.Parse(tt.redirect(state))
			require.NoError(err)
			tk, err := f.Resume(ctx, redirect)
			require.Error(err)
			assert.Nil(tk)
			if tt.wantIsErr != nil {
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
			}
			if tt.wantErrCode != "" {
				assert.True(oidc.IsServerError(err, tt.wantErrCode), err.Error())
			}
			assert.False(f.IsAuthenticating())
			_, _, failed := l.counts()
			if tt.wantFailure {
				assert.Equal(1, failed)
			} else {
				assert.Equal(0, failed)
			}
		})
	}
}

func TestAuthorizationCodeFlow_Start(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("missing-redirect", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := oidc.StartTestProvider(t)
		c, err := oidc.NewClient(p.Config(t))
		require.NoError(err)
		l := &testListener{}
		f := NewAuthorizationCodeFlow(c, WithListener(l))
		_, err = f.Start(ctx)
		assert.Truef(errors.Is(err, ErrMissingRedirectURL), "wanted \"%s\" but got \"%s\"", ErrMissingRedirectURL, err)
		assert.False(f.IsAuthenticating())
		_, _, failed := l.counts()
		assert.Equal(1, failed)
	})

	t.Run("missing-endpoint", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		p := oidc.StartTestProvider(t)
		p.DisableEndpoint(oidc.TestAuthorizePath)
		f := NewAuthorizationCodeFlow(testClient(t, p))
		_, err := f.Start(ctx)
		assert.Truef(errors.Is(err, oidc.ErrMissingEndpoint), "wanted \"%s\" but got \"%s\"", oidc.ErrMissingEndpoint, err)
	})

	t.Run("restart", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := oidc.StartTestProvider(t)
		l := &testListener{}
		f := NewAuthorizationCodeFlow(testClient(t, p), WithListener(l))
		_, err := f.Start(ctx, oidc.WithState("first-state"))
		require.NoError(err)
		_, err = f.Start(ctx, oidc.WithState("second-state"))
		require.NoError(err)
		assert.Equal("second-state", f.FlowContext().State)
		started, finished, _ := l.counts()
		assert.Equal(2, started)
		assert.Equal(1, finished)

		// a redirect for the first authentication no longer matches.
		redirect, err := url.Parse(testRedirectURL + "?code=code&state=first-state")
		require.NoError(err)
		_, err = f.Resume(ctx, redirect)
		assert.ErrorIs(err, ErrInvalidState)
	})

	t.Run("reset", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := oidc.StartTestProvider(t)
		f := NewAuthorizationCodeFlow(testClient(t, p))
		_, err := f.Start(ctx)
		require.NoError(err)
		f.Reset()
		assert.False(f.IsAuthenticating())
		assert.Nil(f.FlowContext())
		_, err = f.Resume(ctx, &url.URL{})
		assert.ErrorIs(err, ErrInvalidContext)
	})
}
