// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/authkit/authflow/oidc/clientassertion"
)

// ClientAuthMethod is a token endpoint authentication method.
type ClientAuthMethod string

const (
	AuthNone              ClientAuthMethod = "none"
	AuthClientSecretPost  ClientAuthMethod = "client_secret_post"
	AuthClientSecretBasic ClientAuthMethod = "client_secret_basic"
	AuthPrivateKeyJWT     ClientAuthMethod = "private_key_jwt"
)

// AssertionSerializer produces a signed client assertion JWT, such as a
// *clientassertion.JWT.
type AssertionSerializer interface {
	Serialize() (string, error)
}

// ClientAuthentication describes how a client authenticates to the token,
// revocation and introspection endpoints. The zero value is AuthNone, for
// public clients.
type ClientAuthentication struct {
	Method    ClientAuthMethod
	Secret    ClientSecret
	Assertion AssertionSerializer
}

// NoClientAuthentication is used by public clients.
func NoClientAuthentication() ClientAuthentication {
	return ClientAuthentication{Method: AuthNone}
}

// ClientSecretAuthentication sends the client secret in the request body.
func ClientSecretAuthentication(secret ClientSecret) ClientAuthentication {
	return ClientAuthentication{Method: AuthClientSecretPost, Secret: secret}
}

// ClientSecretBasicAuthentication sends the client secret with HTTP basic
// authentication.
func ClientSecretBasicAuthentication(secret ClientSecret) ClientAuthentication {
	return ClientAuthentication{Method: AuthClientSecretBasic, Secret: secret}
}

// ClientAssertionAuthentication sends a signed client assertion (RFC 7523).
func ClientAssertionAuthentication(a AssertionSerializer) ClientAuthentication {
	return ClientAuthentication{Method: AuthPrivateKeyJWT, Assertion: a}
}

func (a ClientAuthentication) method() ClientAuthMethod {
	if a.Method == "" {
		return AuthNone
	}
	return a.Method
}

func (a ClientAuthentication) validate() error {
	const op = "ClientAuthentication.validate"
	switch a.method() {
	case AuthNone:
		return nil
	case AuthClientSecretPost, AuthClientSecretBasic:
		if a.Secret == "" {
			return fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter)
		}
		return nil
	case AuthPrivateKeyJWT:
		if a.Assertion == nil {
			return fmt.Errorf("%s: client assertion is nil: %w", op, ErrNilParameter)
		}
		return nil
	default:
		return fmt.Errorf("%s: unknown client authentication method %q: %w", op, a.Method, ErrInvalidParameter)
	}
}

// apply adds the client's credentials to a form POST. client_id is always
// sent in the form, even with basic authentication, since public client
// flows rely on it.
func (a ClientAuthentication) apply(clientID string, form url.Values, header http.Header) error {
	const op = "ClientAuthentication.apply"
	if form.Get("client_id") == "" && clientID != "" {
		form.Set("client_id", clientID)
	}
	switch a.method() {
	case AuthClientSecretPost:
		form.Set("client_secret", string(a.Secret))
	case AuthClientSecretBasic:
		req := http.Request{Header: header}
		req.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(string(a.Secret)))
	case AuthPrivateKeyJWT:
		assertion, err := a.Assertion.Serialize()
		if err != nil {
			return fmt.Errorf("%s: unable to sign client assertion: %w", op, err)
		}
		form.Set("client_assertion_type", clientassertion.JWTTypeParam)
		form.Set("client_assertion", assertion)
	}
	return nil
}
