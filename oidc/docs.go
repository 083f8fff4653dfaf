// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for writing OAuth2 and OIDC client integrations.

Primary types provided by the package

* Config: the client's configuration (issuer, client id, scopes, redirect
URIs, client authentication, supported signing algorithms). A Config can be
built with NewConfig or loaded from a YAML file with LoadConfigFile.

* Client: a client of one authorization server. It caches the provider's
configuration document and key set, and coalesces concurrent fetches of
either into a single request. It exchanges token requests, refreshes,
revokes and introspects tokens, and fetches user info. Concurrent refreshes
of the same Token share one request.

* Token: the immutable result of a token exchange; access, refresh and
id_token plus the context later refresh and revoke calls need. Refreshing
produces a new Token merged with the old one.

* FlowContext: the state, nonce, and PKCE verifier of one authentication flow.

* TokenRequest: a token endpoint request. The NewXxxRequest functions build
one per grant type.

The flow package builds the authentication flows on a Client, and the idx
package builds the interaction code flow.

The oidc.callback package

The callback package includes http.HandlerFuncs which complete an
authorization code flow when the provider redirects to a local listener.

The oidc.clientassertion package

The clientassertion package creates signed client assertions (RFC 7523) for
private_key_jwt client authentication and the JWT bearer grant.

The TestProvider

TestProvider is a local authorization server for tests, with an
httptest.Server under it. It supports every grant the Client and flows use.
*/
package oidc
