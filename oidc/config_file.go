// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/authkit/authflow/internal/strutils"
)

// ConfigFileVersion is the only configuration file version understood.
const ConfigFileVersion = 1

// Configuration file keys. Every other key is passed through as an
// additional parameter.
const (
	fileKeyIssuer            = "issuer"
	fileKeyClientID          = "clientId"
	fileKeyScopes            = "scopes"
	fileKeyRedirectURI       = "redirectUri"
	fileKeyLogoutRedirectURI = "logoutRedirectUri"
	fileKeyClientSecret      = "clientSecret"
	fileKeyDiscoveryURL      = "discoveryUrl"
	fileKeyProviderCA        = "providerCA"
	fileKeyVersion           = "version"
)

// LoadConfigFile reads a YAML (or JSON) configuration file. See ParseConfig.
func LoadConfigFile(path string) (*Config, error) {
	const op = "LoadConfigFile"
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %s: %w", op, path, ErrMissingConfigFile)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return c, nil
}

// ParseConfig parses a configuration document with the keys issuer,
// clientId, scopes, redirectUri, logoutRedirectUri, clientSecret,
// discoveryUrl and providerCA. scopes is either a space or comma separated
// string or a list. Other scalar keys become AdditionalParameters.
func ParseConfig(data []byte) (*Config, error) {
	const op = "ParseConfig"
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidConfiguration, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%s: empty document: %w", op, ErrInvalidConfiguration)
	}

	if v, ok := doc[fileKeyVersion]; ok {
		n, ok := v.(int)
		if !ok || n != ConfigFileVersion {
			return nil, fmt.Errorf("%s: version %v: %w", op, v, ErrUnsupportedConfigVersion)
		}
	}

	c := &Config{}
	var err error
	str := func(key string) string {
		v, ok := doc[key]
		if !ok || err != nil {
			return ""
		}
		s, ok := v.(string)
		if !ok {
			err = fmt.Errorf("%s: %s must be a string: %w", op, key, ErrInvalidConfiguration)
			return ""
		}
		return strings.TrimSpace(s)
	}
	c.Issuer = str(fileKeyIssuer)
	c.ClientID = str(fileKeyClientID)
	c.RedirectURL = str(fileKeyRedirectURI)
	c.LogoutRedirectURL = str(fileKeyLogoutRedirectURI)
	c.DiscoveryURL = str(fileKeyDiscoveryURL)
	c.ProviderCA = str(fileKeyProviderCA)
	if secret := str(fileKeyClientSecret); secret != "" {
		c.Authentication = ClientSecretAuthentication(ClientSecret(secret))
	}
	if err != nil {
		return nil, err
	}

	switch v := doc[fileKeyScopes].(type) {
	case nil:
	case string:
		c.Scopes = strutils.SplitScopes(v)
	case []interface{}:
		for _, s := range v {
			scope, ok := s.(string)
			if !ok {
				return nil, fmt.Errorf("%s: scopes must be strings: %w", op, ErrInvalidConfiguration)
			}
			c.Scopes = append(c.Scopes, scope)
		}
		c.Scopes = strutils.RemoveDuplicatesStable(c.Scopes, false)
	default:
		return nil, fmt.Errorf("%s: scopes must be a string or list: %w", op, ErrInvalidConfiguration)
	}

	known := []string{
		fileKeyIssuer, fileKeyClientID, fileKeyScopes, fileKeyRedirectURI, fileKeyLogoutRedirectURI,
		fileKeyClientSecret, fileKeyDiscoveryURL, fileKeyProviderCA, fileKeyVersion,
	}
	for _, k := range strutils.SortedKeys(doc) {
		if strutils.StrListContains(known, k) {
			continue
		}
		switch v := doc[k].(type) {
		case string, int, bool, float64:
			if c.AdditionalParameters == nil {
				c.AdditionalParameters = map[string]string{}
			}
			c.AdditionalParameters[k] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("%s: %s must be a scalar: %w", op, k, ErrInvalidConfiguration)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidConfiguration, err)
	}
	return c, nil
}
