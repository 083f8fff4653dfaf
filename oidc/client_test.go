// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/storage"
)

func testClient(t *testing.T, p *TestProvider, opt ...Option) *Client {
	t.Helper()
	c, err := NewClient(p.Config(t), opt...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)

	tests := []struct {
		name      string
		config    func() *Config
		opts      []Option
		wantErr   bool
		wantIsErr error
	}{
		{
			name:   "valid",
			config: func() *Config { return p.Config(t) },
		},
		{
			name:   "valid-with-logger",
			config: func() *Config { return p.Config(t) },
			opts:   []Option{WithLogger(hclog.NewNullLogger()), WithUserAgent("test-agent")},
		},
		{
			name:      "nil-config",
			config:    func() *Config { return nil },
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name: "missing-client-id",
			config: func() *Config {
				c := p.Config(t)
				c.ClientID = ""
				return c
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "bad-ca",
			config: func() *Config {
				c := p.Config(t)
				c.ProviderCA = "not-a-pem"
				return c
			},
			wantErr:   true,
			wantIsErr: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewClient(tt.config(), tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.NotNil(got.HTTPClient())
			assert.NotNil(got.CookieJar())
			assert.NotNil(got.Logger())
			assert.NotNil(got.Clock())
		})
	}
}

func TestClient_OpenIDConfiguration(t *testing.T) {
	t.Parallel()

	t.Run("single-flight", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDelay(TestDiscoveryPath, 100*time.Millisecond)
		c := testClient(t, p)

		const n = 10
		var wg sync.WaitGroup
		results := make([]*ProviderMetadata, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = c.OpenIDConfiguration(context.Background())
			}(i)
		}
		wg.Wait()
		for i := 0; i < n; i++ {
			require.NoError(errs[i])
			assert.Same(results[0], results[i])
		}
		assert.Equal(1, p.Calls(TestDiscoveryPath))
		assert.Equal(p.Addr()+TestTokenPath, results[0].TokenEndpoint)

		// cached
		_, err := c.OpenIDConfiguration(context.Background())
		require.NoError(err)
		assert.Equal(1, p.Calls(TestDiscoveryPath))
	})

	t.Run("shared-failure", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDelay(TestDiscoveryPath, 50*time.Millisecond)
		p.DisableEndpoint(TestDiscoveryPath)
		c := testClient(t, p)

		const n = 5
		var wg sync.WaitGroup
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = c.OpenIDConfiguration(context.Background())
			}(i)
		}
		wg.Wait()
		for i := 0; i < n; i++ {
			require.Error(errs[i])
			var se *ServerError
			require.True(errors.As(errs[i], &se))
			assert.Equal(http.StatusNotFound, se.StatusCode)
		}
		assert.Equal(1, p.Calls(TestDiscoveryPath))
	})

	t.Run("issuer-mismatch", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		cfg := p.Config(t)
		cfg.DiscoveryURL = cfg.Issuer + WellKnownPath
		cfg.Issuer = "https://other.example.com"
		c, err := NewClient(cfg)
		require.NoError(err)
		_, err = c.OpenIDConfiguration(context.Background())
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidIssuer), "wanted \"%s\" but got \"%s\"", ErrInvalidIssuer, err)
	})

	t.Run("reset-cache", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		_, err := c.OpenIDConfiguration(context.Background())
		require.NoError(err)
		_, err = c.JWKS(context.Background())
		require.NoError(err)
		c.ResetCache()
		_, err = c.JWKS(context.Background())
		require.NoError(err)
		assert.Equal(2, p.Calls(TestDiscoveryPath))
		assert.Equal(2, p.Calls(TestKeysPath))
	})

	t.Run("cancelled-waiter", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDelay(TestDiscoveryPath, 200*time.Millisecond)
		c := testClient(t, p)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.OpenIDConfiguration(ctx)
		require.Error(err)
		assert.ErrorIs(err, context.DeadlineExceeded)

		got, err := c.OpenIDConfiguration(context.Background())
		require.NoError(err)
		assert.Equal(p.Addr(), got.Issuer)
		assert.Equal(1, p.Calls(TestDiscoveryPath))
	})
}

func TestClient_JWKS(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetDelay(TestKeysPath, 50*time.Millisecond)
	c := testClient(t, p)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.JWKS(context.Background())
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(err)
	}
	assert.Equal(1, p.Calls(TestDiscoveryPath))
	assert.Equal(1, p.Calls(TestKeysPath))

	keys, err := c.JWKS(context.Background())
	require.NoError(err)
	_, kid := p.SigningKey()
	assert.Len(keys.Key(kid), 1)
}

func TestClient_JWKS_missingURI(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.DisableEndpoint(TestKeysPath)
	c := testClient(t, p)
	_, err := c.JWKS(context.Background())
	require.Error(err)
	assert.Truef(errors.Is(err, ErrMissingEndpoint), "wanted \"%s\" but got \"%s\"", ErrMissingEndpoint, err)
}

func TestClient_SetConfig(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	c := testClient(t, p)
	_, err := c.OpenIDConfiguration(context.Background())
	require.NoError(err)

	cfg := c.Config()
	cfg.Scopes = []string{"openid", "email"}
	require.NoError(c.SetConfig(cfg))
	assert.Equal([]string{"openid", "email"}, c.Config().Scopes)

	_, err = c.OpenIDConfiguration(context.Background())
	require.NoError(err)
	assert.Equal(2, p.Calls(TestDiscoveryPath))

	bad := c.Config()
	bad.ClientID = ""
	err = c.SetConfig(bad)
	require.Error(err)
	assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)

	// the returned config is a copy
	got := c.Config()
	got.Scopes[0] = "changed"
	assert.Equal("openid", c.Config().Scopes[0])
}

func TestClient_hooks(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	store := storage.NewMemoryStore()

	var mu sync.Mutex
	var seen []http.Header
	var statuses []int
	c := testClient(t, p,
		WithSecretStore(store),
		WithUserAgent("test-agent/1.0"),
		WithRequestHook(func(r *http.Request) {
			r.Header.Set("X-Test", "yes")
			mu.Lock()
			seen = append(seen, r.Header.Clone())
			mu.Unlock()
		}),
		WithResponseHook(func(r *http.Response) {
			mu.Lock()
			statuses = append(statuses, r.StatusCode)
			mu.Unlock()
		}),
	)
	_, err := c.OpenIDConfiguration(context.Background())
	require.NoError(err)

	deviceID, err := storage.DeviceIdentifier(store)
	require.NoError(err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(seen, 1)
	assert.Equal("test-agent/1.0", seen[0].Get("User-Agent"))
	assert.Equal(deviceID, seen[0].Get(DeviceTokenHeader))
	assert.Equal("yes", seen[0].Get("X-Test"))
	assert.Equal([]int{http.StatusOK}, statuses)
}

func TestClient_CaptureRedirect(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetExpectedAuthCode("test-code")
	c := testClient(t, p)

	u, err := c.CaptureRedirect(context.Background(),
		p.Addr()+TestAuthorizePath+"?response_type=code&state=st_1&redirect_uri=com.example%3A%2Fcallback")
	require.NoError(err)
	assert.Equal("com.example", u.Scheme)
	assert.Equal("test-code", u.Query().Get("code"))
	assert.Equal("st_1", u.Query().Get("state"))

	_, err = c.CaptureRedirect(context.Background(), p.Addr()+TestDiscoveryPath)
	require.Error(err)
	assert.Truef(errors.Is(err, ErrInvalidResponse), "wanted \"%s\" but got \"%s\"", ErrInvalidResponse, err)
}

func TestClient_Subscribe(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	p := StartTestProvider(t)
	c := testClient(t, p)

	var got []EventType
	unsubscribe := c.Subscribe(func(e Event) { got = append(got, e.Type) })
	c.publish(Event{Type: EventTokenRefreshed})
	unsubscribe()
	c.publish(Event{Type: EventTokenRefreshFailed})
	assert.Equal([]EventType{EventTokenRefreshed}, got)
}
