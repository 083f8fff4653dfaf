// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []string
	last   *Token
}

func (l *recordingListener) WillRefresh(*Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "will")
}

func (l *recordingListener) DidRefresh(_ *Token, replacement *Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if replacement == nil {
		l.events = append(l.events, "did-nil")
	} else {
		l.events = append(l.events, "did")
	}
	l.last = replacement
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func testPasswordToken(t *testing.T, p *TestProvider, c *Client) *Token {
	t.Helper()
	p.SetUserCredentials("alice", "secret")
	r, err := NewPasswordRequest("alice", "secret", "openid offline_access")
	require.NoError(t, err)
	tk, err := c.Exchange(context.Background(), r)
	require.NoError(t, err)
	return tk
}

func TestClient_Refresh(t *testing.T) {
	t.Parallel()

	t.Run("single-flight", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		l := &recordingListener{}
		c.AddListener(l)
		tk := testPasswordToken(t, p, c)
		before := p.Calls(TestTokenPath)
		p.SetDelay(TestTokenPath, 100*time.Millisecond)

		const n = 10
		var wg sync.WaitGroup
		results := make([]*Token, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = c.Refresh(context.Background(), tk)
			}(i)
		}
		wg.Wait()
		for i := 0; i < n; i++ {
			require.NoError(errs[i])
			assert.Same(results[0], results[i])
		}
		assert.Equal(before+1, p.Calls(TestTokenPath))
		assert.Equal([]string{"will", "did"}, l.snapshot())
		assert.Equal(tk.ID, results[0].ID)
		assert.NotEqual(tk.AccessToken, results[0].AccessToken)
	})

	t.Run("independent-tokens", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		a := testPasswordToken(t, p, c)
		b := testPasswordToken(t, p, c)
		before := p.Calls(TestTokenPath)
		p.SetDelay(TestTokenPath, 50*time.Millisecond)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, tk := range []*Token{a, b} {
			wg.Add(1)
			go func(i int, tk *Token) {
				defer wg.Done()
				_, errs[i] = c.Refresh(context.Background(), tk)
			}(i, tk)
		}
		wg.Wait()
		require.NoError(errs[0])
		require.NoError(errs[1])
		assert.Equal(before+2, p.Calls(TestTokenPath))
	})

	t.Run("omitted-refresh-token-is-kept", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		tk := testPasswordToken(t, p, c)
		p.OmitRefreshTokenOnRefresh(true)

		var events []Event
		c.Subscribe(func(e Event) { events = append(events, e) })

		got, err := c.Refresh(context.Background(), tk)
		require.NoError(err)
		assert.Equal(tk.RefreshToken, got.RefreshToken)
		assert.NotEqual(tk.AccessToken, got.AccessToken)
		require.Len(events, 1)
		assert.Equal(EventTokenRefreshed, events[0].Type)
		assert.Same(tk, events[0].Token)
		assert.Same(got, events[0].Replacement)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		l := &recordingListener{}
		c.AddListener(l)
		tk := testPasswordToken(t, p, c)
		bad := *tk
		bad.RefreshToken = "unknown"

		var events []Event
		c.Subscribe(func(e Event) { events = append(events, e) })

		_, err := c.Refresh(context.Background(), &bad)
		require.Error(err)
		assert.True(IsServerError(err, ErrCodeInvalidGrant))
		assert.Equal([]string{"will", "did-nil"}, l.snapshot())
		require.Len(events, 1)
		assert.Equal(EventTokenRefreshFailed, events[0].Type)
		assert.Error(events[0].Err)

		c.RemoveListener(l)
		_, err = c.Refresh(context.Background(), tk)
		require.NoError(err)
		assert.Len(l.snapshot(), 2)
	})

	t.Run("missing-values", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)

		_, err := c.Refresh(context.Background(), &Token{AccessToken: "a"})
		assert.Truef(errors.Is(err, ErrMissingToken), "wanted \"%s\" but got \"%s\"", ErrMissingToken, err)
		var mte *MissingTokenError
		if assert.True(errors.As(err, &mte)) {
			assert.Equal(RefreshTokenKind, mte.Kind)
			assert.False(mte.Revocable)
		}
		_, err = c.Refresh(context.Background(), &Token{RefreshToken: "r"})
		assert.Truef(errors.Is(err, ErrMissingClientConfiguration), "wanted \"%s\" but got \"%s\"", ErrMissingClientConfiguration, err)
		_, err = c.Refresh(context.Background(), nil)
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
		assert.Equal(0, p.Calls(TestTokenPath))
	})
}

func TestClient_TokenSource(t *testing.T) {
	t.Parallel()

	t.Run("refreshes-when-expired", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		tk := testPasswordToken(t, p, c)
		expired := *tk
		expired.IssuedAt = time.Now().Add(-2 * expired.ExpiresIn)

		var saved []*Token
		ts := c.TokenSource(context.Background(), &expired, func(t *Token) { saved = append(saved, t) })
		before := p.Calls(TestTokenPath)

		first, err := ts.Token()
		require.NoError(err)
		assert.NotEqual(string(tk.AccessToken), first.AccessToken)
		assert.True(first.Valid())
		require.Len(saved, 1)
		assert.Equal(first.AccessToken, string(saved[0].AccessToken))

		second, err := ts.Token()
		require.NoError(err)
		assert.Equal(first.AccessToken, second.AccessToken)
		assert.Equal(before+1, p.Calls(TestTokenPath))
	})

	t.Run("valid-token-reused", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		c := testClient(t, p)
		tk := testPasswordToken(t, p, c)
		before := p.Calls(TestTokenPath)

		got, err := c.TokenSource(context.Background(), tk, nil).Token()
		require.NoError(err)
		assert.Equal(string(tk.AccessToken), got.AccessToken)
		assert.Equal(before, p.Calls(TestTokenPath))
	})

	t.Run("nil-token", func(t *testing.T) {
		t.Parallel()
		p := StartTestProvider(t)
		_, err := testClient(t, p).TokenSource(context.Background(), nil, nil).Token()
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}
