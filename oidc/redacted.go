// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string { return RedactedAccessToken }

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedAccessToken) }

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// RedactedRefreshToken is the redacted string or json for an oauth refresh_token.
const RedactedRefreshToken = "[REDACTED: refresh_token]"

// String will redact the token.
func (t RefreshToken) String() string { return RedactedRefreshToken }

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedRefreshToken) }

// DeviceSecret is the device_secret issued for native SSO.
type DeviceSecret string

// RedactedDeviceSecret is the redacted string or json for a device_secret.
const RedactedDeviceSecret = "[REDACTED: device_secret]"

// String will redact the secret.
func (t DeviceSecret) String() string { return RedactedDeviceSecret }

// MarshalJSON will redact the secret.
func (t DeviceSecret) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedDeviceSecret) }

// ClientSecret is an oauth client secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string { return RedactedClientSecret }

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedClientSecret) }

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string { return RedactedIDToken }

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedIDToken) }

// Claims retrieves the IDToken claims without verifying its signature. Use
// it only on tokens which were verified when issued.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying the signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, mapClaims); err != nil {
		return fmt.Errorf("%s: malformed jwt: %w: %w", op, ErrInvalidParameter, err)
	}
	b, err := json.Marshal(mapClaims)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(b, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return nil
}
