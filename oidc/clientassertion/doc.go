// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package clientassertion signs the JWTs a client presents instead of a bare
secret. The same JWT serves two RFC 7523 uses:

  - client authentication (client_assertion), sent by an oidc.Client
    configured with oidc.ClientAssertionAuthentication. A private key makes
    this private_key_jwt; a client secret makes it client_secret_jwt.
  - an authorization grant, exchanged by flow.JWTBearerFlow. WithSubject names
    the user or service account the grant is for.

Every call to Serialize signs a fresh assertion with its own "jti" and
validity window, so one JWT can be shared by a long lived client.

	j, err := clientassertion.NewJWTWithKey("client-id",
		[]string{"https://idp.example.com/oauth2/v1/token"},
		jwt.ES256, ecdsaKey,
		clientassertion.WithKeyID("key-1"),
	)
	...
	cfg, err := oidc.NewConfig(issuer, "client-id",
		oidc.WithClientAuthentication(oidc.ClientAssertionAuthentication(j)))
*/
package clientassertion
