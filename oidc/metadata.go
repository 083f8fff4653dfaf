// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "github.com/authkit/authflow/internal/strutils"

// ProviderMetadata is the subset of the OpenID provider configuration
// document used by the clients and flows.
type ProviderMetadata struct {
	Issuer                             string   `json:"issuer"`
	AuthorizationEndpoint              string   `json:"authorization_endpoint"`
	TokenEndpoint                      string   `json:"token_endpoint"`
	UserinfoEndpoint                   string   `json:"userinfo_endpoint,omitempty"`
	JWKSURI                            string   `json:"jwks_uri"`
	EndSessionEndpoint                 string   `json:"end_session_endpoint,omitempty"`
	DeviceAuthorizationEndpoint        string   `json:"device_authorization_endpoint,omitempty"`
	RevocationEndpoint                 string   `json:"revocation_endpoint,omitempty"`
	IntrospectionEndpoint              string   `json:"introspection_endpoint,omitempty"`
	ScopesSupported                    []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported             []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported                []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported      []string `json:"code_challenge_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported   []string `json:"id_token_signing_alg_values_supported,omitempty"`
	TokenEndpointAuthMethodsSupported  []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	ClaimsSupported                    []string `json:"claims_supported,omitempty"`
	RequestParameterSupported          bool     `json:"request_parameter_supported,omitempty"`
	FrontchannelLogoutSessionSupported bool     `json:"frontchannel_logout_session_supported,omitempty"`
}

// SupportsGrant reports whether the provider lists grantType. An empty list
// means the provider didn't advertise its grants, which is treated as
// supported.
func (m *ProviderMetadata) SupportsGrant(grantType string) bool {
	if len(m.GrantTypesSupported) == 0 {
		return true
	}
	return strutils.StrListContains(m.GrantTypesSupported, grantType)
}
