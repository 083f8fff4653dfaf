// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/authkit/authflow/oidc"
)

// testNewClient creates a client for the TestProvider (tp) using a client
// secret, and sets the TestProvider's client creds to match. This is helpful
// internally, but intentionally not exported.
func testNewClient(t *testing.T, clientID, clientSecret, redirectURL string, tp *oidc.TestProvider) *oidc.Client {
	const op = "testNewClient"
	t.Helper()
	require := require.New(t)
	require.NotEmptyf(clientID, "%s: client id is empty", op)
	require.NotEmptyf(clientSecret, "%s: client secret is empty", op)
	require.NotEmptyf(redirectURL, "%s: redirect URL is empty", op)

	tp.SetClientCreds(clientID, clientSecret)
	tp.SetAllowedRedirectURIs(redirectURL)
	c, err := oidc.NewClient(tp.Config(t,
		oidc.WithRedirectURL(redirectURL),
		oidc.WithClientAuthentication(oidc.ClientSecretAuthentication(oidc.ClientSecret(clientSecret))),
	))
	require.NoError(err)
	return c
}
