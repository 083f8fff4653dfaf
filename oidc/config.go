// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"

	"github.com/authkit/authflow/internal/strutils"
	"github.com/authkit/authflow/jwt"
)

// WellKnownPath is appended to the issuer to derive the discovery URL.
const WellKnownPath = "/.well-known/openid-configuration"

// Config represents the configuration of an OAuth2/OIDC client. A Config is
// not modified once a Client uses it; Client.SetConfig replaces it.
type Config struct {
	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// DiscoveryURL is an optional explicit location of the discovery
	// document. See DiscoveryEndpoint.
	DiscoveryURL string

	// ClientID is the relying party id.
	ClientID string

	// Scopes is the list of scopes to request. "openid" is requested when
	// the list is empty.
	Scopes []string

	// RedirectURL is the optional redirect_uri of the client.
	RedirectURL string

	// LogoutRedirectURL is the optional post_logout_redirect_uri.
	LogoutRedirectURL string

	// Authentication is how the client authenticates to the token endpoint.
	Authentication ClientAuthentication

	// Audiences is an optional list of audiences accepted in an id_token's
	// "aud" claim in addition to the client id.
	Audiences []string

	// SupportedSigningAlgs is a list of supported signing algorithms. RS256
	// is used when empty.
	SupportedSigningAlgs []jwt.Alg

	// AdditionalParameters are sent with every authorization and token
	// request.
	AdditionalParameters map[string]string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string
}

// NewConfig composes a new config for a client.
//
// Supported options:
//   - WithDiscoveryURL
//   - WithScopes
//   - WithRedirectURL
//   - WithLogoutRedirectURL
//   - WithClientAuthentication
//   - WithAudiences
//   - WithSigningAlgs
//   - WithAdditionalParameters
//   - WithProviderCA
func NewConfig(issuer, clientID string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		DiscoveryURL:         opts.withDiscoveryURL,
		ClientID:             clientID,
		Scopes:               opts.withScopes,
		RedirectURL:          opts.withRedirectURL,
		LogoutRedirectURL:    opts.withLogoutRedirectURL,
		Authentication:       opts.withAuthentication,
		Audiences:            opts.withAudiences,
		SupportedSigningAlgs: opts.withSigningAlgs,
		AdditionalParameters: opts.withAdditionalParameters,
		ProviderCA:           opts.withProviderCA,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the configuration. Among other validations, it verifies the issuer
// is not empty, but it doesn't verify the Issuer is discoverable via an http
// request. All problems are reported, not only the first.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client id is empty: %w", ErrInvalidParameter))
	}
	if c.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("issuer is empty: %w", ErrInvalidParameter))
	} else if err := validateURL(c.Issuer); err != nil {
		result = multierror.Append(result, fmt.Errorf("issuer %s is invalid: %w", c.Issuer, err))
	}
	if c.DiscoveryURL != "" {
		if err := validateURL(c.DiscoveryURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("discovery URL %s is invalid: %w", c.DiscoveryURL, err))
		}
	}
	if c.RedirectURL != "" {
		if _, err := url.Parse(c.RedirectURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("redirect URL %s is invalid: %w", c.RedirectURL, ErrInvalidParameter))
		}
	}
	if err := jwt.SupportedSigningAlgorithm(c.SupportedSigningAlgs...); err != nil {
		result = multierror.Append(result, fmt.Errorf("%w: %w", ErrUnsupportedAlg, err))
	}
	if err := c.Authentication.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("schema is not http or https: %w", ErrInvalidParameter)
	}
	return nil
}

// DiscoveryEndpoint returns the discovery document URL: DiscoveryURL when
// set, otherwise the issuer with WellKnownPath appended.
func (c *Config) DiscoveryEndpoint() string {
	if c.DiscoveryURL != "" {
		return c.DiscoveryURL
	}
	return strings.TrimSuffix(c.Issuer, "/") + WellKnownPath
}

// ScopeString returns the space separated scopes, defaulting to "openid".
func (c *Config) ScopeString() string {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID}
	}
	return strutils.JoinScopes(scopes)
}

// SigningAlgs returns the supported signing algorithms, defaulting to RS256.
func (c *Config) SigningAlgs() []jwt.Alg {
	if len(c.SupportedSigningAlgs) == 0 {
		return []jwt.Alg{jwt.RS256}
	}
	return c.SupportedSigningAlgs
}

// ClientSettings returns the settings recorded with tokens issued to this
// client.
func (c *Config) ClientSettings() map[string]string {
	s := map[string]string{
		SettingClientID: c.ClientID,
		SettingScope:    c.ScopeString(),
	}
	if c.RedirectURL != "" {
		s[SettingRedirectURI] = c.RedirectURL
	}
	return s
}

// Copy returns a deep copy of c.
func (c *Config) Copy() *Config {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	cp.Audiences = append([]string(nil), c.Audiences...)
	cp.SupportedSigningAlgs = append([]jwt.Alg(nil), c.SupportedSigningAlgs...)
	if c.AdditionalParameters != nil {
		cp.AdditionalParameters = make(map[string]string, len(c.AdditionalParameters))
		for k, v := range c.AdditionalParameters {
			cp.AdditionalParameters[k] = v
		}
	}
	return &cp
}

// configOptions is the set of available options.
type configOptions struct {
	withDiscoveryURL         string
	withScopes               []string
	withRedirectURL          string
	withLogoutRedirectURL    string
	withAuthentication       ClientAuthentication
	withAudiences            []string
	withSigningAlgs          []jwt.Alg
	withAdditionalParameters map[string]string
	withProviderCA           string
}

func configDefaults() configOptions {
	return configOptions{
		withScopes: []string{oidc.ScopeOpenID},
	}
}

func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithDiscoveryURL sets an explicit discovery document URL.
func WithDiscoveryURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withDiscoveryURL = u
		}
	}
}

// WithScopes provides an optional list of scopes for the config. "openid"
// isn't added automatically when scopes are supplied.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithRedirectURL sets the redirect_uri.
func WithRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectURL = u
		}
	}
}

// WithLogoutRedirectURL sets the post_logout_redirect_uri.
func WithLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogoutRedirectURL = u
		}
	}
}

// WithClientAuthentication sets how the client authenticates.
func WithClientAuthentication(a ClientAuthentication) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthentication = a
		}
	}
}

// WithAudiences provides an optional list of audiences for the config.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithSigningAlgs sets the supported id_token signing algorithms.
func WithSigningAlgs(algs ...jwt.Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSigningAlgs = algs
		}
	}
}

// WithProviderCA provides an optional CA cert for the provider's config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}
