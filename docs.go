// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// authflow is a collection of packages for OAuth2 and OpenID Connect clients:
// provider discovery and key sets, token exchange, refresh, revocation and
// introspection, the sign in flows, and the interaction code remediation
// engine.
//
//   - oidc: the client, its configuration and the token model
//   - flow: authorization code, device authorization, resource owner, token
//     exchange, JWT bearer, session token and logout flows
//   - idx: interaction code flow driven by server remediations
//   - oidc/callback: http handlers and a loopback listener completing an
//     authorization code flow
//   - jwt: key sets and id_token validation
//   - coalesce: single flight cache shared by concurrent fetches
//
// See examples/cli for a command line client using them.
package authflow
