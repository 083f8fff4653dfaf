// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"

	"github.com/authkit/authflow/jwt"
	"github.com/authkit/authflow/oidc"
	"github.com/authkit/authflow/oidc/clientassertion"
	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
)

func ExampleNewJWTWithKey() {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Fatal(err)
	}
	j, err := clientassertion.NewJWTWithKey("client-id",
		[]string{"https://idp.example.com/oauth2/v1/token"},
		jwt.ES256, key,
		clientassertion.WithKeyID("key-1"),
	)
	if err != nil {
		log.Fatal(err)
	}

	// The client sends a freshly signed assertion with every token request.
	auth := oidc.ClientAssertionAuthentication(j)
	fmt.Println(auth.Method)

	// What the provider sees.
	signed, err := j.Serialize()
	if err != nil {
		log.Fatal(err)
	}
	token, err := josejwt.ParseSigned(signed, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		log.Fatal(err)
	}
	var claims josejwt.Claims
	if err := token.Claims(&key.PublicKey, &claims); err != nil {
		log.Fatal(err)
	}
	fmt.Println(token.Headers[0].Algorithm, token.Headers[0].KeyID)
	fmt.Println(claims.Issuer, claims.Subject, claims.Audience[0])

	// Output:
	// private_key_jwt
	// ES256 key-1
	// client-id client-id https://idp.example.com/oauth2/v1/token
}

func ExampleNewJWTWithSecret() {
	// A JWT bearer grant for a service account, signed with the client secret.
	j, err := clientassertion.NewJWTWithSecret("client-id",
		[]string{"https://idp.example.com/oauth2/v1/token"},
		clientassertion.HS256, "a-secret-which-is-at-least-32-bytes-long",
		clientassertion.WithSubject("svc-reporting"),
	)
	if err != nil {
		log.Fatal(err)
	}
	signed, err := j.Serialize()
	if err != nil {
		log.Fatal(err)
	}
	token, err := josejwt.ParseSigned(signed, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		log.Fatal(err)
	}
	var claims josejwt.Claims
	if err := token.Claims([]byte("a-secret-which-is-at-least-32-bytes-long"), &claims); err != nil {
		log.Fatal(err)
	}
	fmt.Println(claims.Issuer, claims.Subject)

	// Output:
	// client-id svc-reporting
}
