// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/oidc"
)

const testRedirectURL = "com.example:/callback"

var errTest = errors.New("test error")

func testClient(t *testing.T, p *oidc.TestProvider, opt ...oidc.Option) *oidc.Client {
	t.Helper()
	opts := append([]oidc.Option{
		oidc.WithRedirectURL(testRedirectURL),
		oidc.WithLogoutRedirectURL("com.example:/logout"),
		oidc.WithScopes("openid", "profile", "offline_access"),
	}, opt...)
	c, err := oidc.NewClient(p.Config(t, opts...))
	require.NoError(t, err)
	return c
}

type testListener struct {
	mu       sync.Mutex
	started  int
	finished int
	failed   []error
}

func (l *testListener) AuthenticationStarted(Flow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *testListener) AuthenticationFinished(Flow) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished++
}

func (l *testListener) AuthenticationFailed(_ Flow, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, err)
}

func (l *testListener) counts() (started, finished, failed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started, l.finished, len(l.failed)
}

type customizingListener struct {
	testListener
}

func (l *customizingListener) CustomizeURL(_ Flow, u *url.URL) {
	q := u.Query()
	q.Set("custom", "value")
	u.RawQuery = q.Encode()
}

type testFlow struct {
	base
	value string
}

func newTestFlow(t *testing.T, opt ...Option) *testFlow {
	t.Helper()
	p := oidc.StartTestProvider(t)
	f := &testFlow{}
	f.setup(f, testClient(t, p), getFlowOpts(opt...), func() { f.value = "" })
	return f
}

func TestBase_setAuthenticating(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	l := &testListener{}
	f := newTestFlow(t, WithListener(l))

	f.setAuthenticating(false)
	f.setAuthenticating(true)
	f.setAuthenticating(true)
	assert.True(f.IsAuthenticating())
	f.setAuthenticating(false)
	f.setAuthenticating(false)
	assert.False(f.IsAuthenticating())

	started, finished, failed := l.counts()
	assert.Equal(1, started)
	assert.Equal(1, finished)
	assert.Equal(0, failed)
}

func TestBase_generations(t *testing.T) {
	t.Parallel()

	t.Run("reset-discards-completion", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		l := &testListener{}
		f := newTestFlow(t, WithListener(l))

		gen := f.begin(func() { f.value = "first" })
		f.Reset()
		assert.Empty(f.value)
		err := f.complete(gen, errTest)
		assert.ErrorIs(err, ErrFlowReset)
		assert.ErrorIs(err, errTest)
		started, finished, failed := l.counts()
		assert.Equal(1, started)
		assert.Equal(1, finished)
		assert.Equal(0, failed)
	})

	t.Run("restart", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		l := &testListener{}
		f := newTestFlow(t, WithListener(l))

		first := f.begin(func() { f.value = "first" })
		second := f.begin(func() { f.value = "second" })
		assert.Equal("second", f.value)
		assert.ErrorIs(f.current(first, nil), ErrFlowReset)
		assert.NoError(f.current(second, nil))
		assert.NoError(f.complete(second, nil))
		assert.False(f.IsAuthenticating())
		assert.Empty(f.value)

		started, finished, _ := l.counts()
		assert.Equal(2, started)
		assert.Equal(2, finished)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		l := &testListener{}
		f := newTestFlow(t, WithListener(l))
		gen := f.begin(nil)
		assert.ErrorIs(f.complete(gen, errTest), errTest)
		_, _, failed := l.counts()
		assert.Equal(1, failed)
	})

	t.Run("reset-before-start", func(t *testing.T) {
		t.Parallel()
		l := &testListener{}
		f := newTestFlow(t, WithListener(l))
		f.Reset()
		f.Reset()
		started, finished, _ := l.counts()
		assert.Equal(t, 0, started)
		assert.Equal(t, 0, finished)
	})
}

func TestBase_listeners(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	l := &testListener{}
	f := newTestFlow(t)
	f.AddListener(l)
	f.setAuthenticating(true)
	f.RemoveListener(l)
	f.setAuthenticating(false)
	started, finished, _ := l.counts()
	assert.Equal(1, started)
	assert.Equal(0, finished)
}

func redirectURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
