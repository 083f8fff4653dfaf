// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/oidc"
)

func TestLoopback(t *testing.T) {
	t.Parallel()

	t.Run("token", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		l, err := NewLoopback("", "")
		require.NoError(err)
		defer l.Close()
		assert.True(strings.HasPrefix(l.RedirectURL(), "http://127.0.0.1:"))
		assert.True(strings.HasSuffix(l.RedirectURL(), DefaultLoopbackPath))

		r := &testResumer{token: &oidc.Token{AccessToken: "at"}}
		require.NoError(l.Serve(ctx, r, TextSuccess("login successful"), JSONError))

		resp, err := http.Get(l.RedirectURL() + "?state=s&code=c")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)

		tk, err := l.Wait(ctx)
		require.NoError(err)
		assert.Equal(oidc.AccessToken("at"), tk.AccessToken)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		l, err := NewLoopback("127.0.0.1:0", "/done")
		require.NoError(err)
		defer l.Close()

		r := &testResumer{err: oidc.NewServerError(oidc.ErrCodeAccessDenied, "", "")}
		require.NoError(l.Serve(ctx, r, TextSuccess("login successful"), JSONError))

		resp, err := http.Get(l.RedirectURL() + "?state=s&error=access_denied")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusUnauthorized, resp.StatusCode)

		_, err = l.Wait(ctx)
		assert.True(oidc.IsServerError(err, oidc.ErrCodeAccessDenied))
	})

	t.Run("wait-canceled", func(t *testing.T) {
		t.Parallel()
		require := require.New(t)
		l, err := NewLoopback("", "")
		require.NoError(err)
		defer l.Close()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = l.Wait(ctx)
		require.ErrorIs(err, context.Canceled)
	})
}
