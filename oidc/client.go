// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/net/publicsuffix"

	"github.com/authkit/authflow/coalesce"
	"github.com/authkit/authflow/internal/listener"
	"github.com/authkit/authflow/jwt"
	sdkhttp "github.com/authkit/authflow/sdk/http"
	"github.com/authkit/authflow/storage"
)

// maxResponseSize bounds the bytes read from any provider response.
const maxResponseSize = 4 << 20

// Client is an OAuth2/OIDC client of one authorization server. It caches the
// provider's configuration document and key set, coalesces concurrent
// fetches of either, and coalesces concurrent refreshes of the same token.
// A Client is safe for concurrent use.
type Client struct {
	// mu guards config, metadata, keys and generation.
	mu         sync.Mutex
	config     *Config
	metadata   *ProviderMetadata
	keys       *jose.JSONWebKeySet
	generation uint64

	discovery coalesce.Group[*ProviderMetadata]
	keyFetch  coalesce.Group[*jose.JSONWebKeySet]
	refreshes coalesce.Group[*Token]

	httpClient *http.Client
	jar        http.CookieJar
	logger     hclog.Logger
	clock      Clock
	validator  TokenValidator

	listeners     listener.Set[ClientListener]
	subscriptions listener.Set[*subscription]
}

// NewClient creates a Client for the config. The config is copied.
//
// Supported options:
//   - WithLogger
//   - WithHTTPClient
//   - WithCookieJar
//   - WithSecretStore
//   - WithUserAgent
//   - WithClock
//   - WithNow
//   - WithTokenValidator
//   - WithRequestHook
//   - WithResponseHook
func NewClient(c *Config, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getClientOpts(opt...)

	jar := opts.withCookieJar
	if jar == nil {
		var err error
		if jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err != nil {
			return nil, fmt.Errorf("%s: unable to create cookie jar: %w", op, err)
		}
	}

	skew := NewSkewClock(opts.withNow)
	var clock Clock = skew
	if opts.withClock != nil {
		clock = opts.withClock
	}

	var deviceToken string
	if opts.withSecretStore != nil {
		var err error
		if deviceToken, err = storage.DeviceIdentifier(opts.withSecretStore); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	wrap := func(base http.RoundTripper) http.RoundTripper {
		if base == nil {
			base = http.DefaultTransport
		}
		return &hookTransport{
			base:          base,
			userAgent:     opts.withUserAgent,
			deviceToken:   deviceToken,
			clock:         skew,
			requestHooks:  opts.withRequestHooks,
			responseHooks: opts.withResponseHooks,
		}
	}

	var hc *http.Client
	if opts.withHTTPClient != nil {
		cp := *opts.withHTTPClient
		cp.Transport = wrap(cp.Transport)
		if cp.Jar == nil {
			cp.Jar = jar
		}
		jar = cp.Jar
		hc = &cp
	} else {
		var err error
		hc, err = sdkhttp.NewClient(c.ProviderCA, sdkhttp.WithCookieJar(jar), sdkhttp.WithRoundTripper(wrap))
		if err != nil {
			if errors.Is(err, sdkhttp.ErrInvalidCertificatePem) {
				return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
			}
			return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
		}
	}

	validator := opts.withValidator
	if validator == nil {
		validator = IDTokenValidator{}
	}

	return &Client{
		config:     c.Copy(),
		httpClient: hc,
		jar:        jar,
		logger:     opts.withLogger,
		clock:      clock,
		validator:  validator,
	}, nil
}

// Config returns a copy of the client's current configuration.
func (c *Client) Config() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Copy()
}

// currentConfig returns the current configuration, which must not be modified.
func (c *Client) currentConfig() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// SetConfig replaces the client's configuration and discards the cached
// provider configuration and key set.
func (c *Client) SetConfig(cfg *Config) error {
	const op = "Client.SetConfig"
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.mu.Lock()
	c.config = cfg.Copy()
	c.mu.Unlock()
	c.ResetCache()
	return nil
}

// ResetCache discards the cached provider configuration and key set. Fetches
// already in flight complete for their callers but aren't cached.
func (c *Client) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata = nil
	c.keys = nil
	c.generation++
}

// HTTPClient returns the http client used for all provider requests.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// CookieJar returns the client's cookie jar.
func (c *Client) CookieJar() http.CookieJar { return c.jar }

// Logger returns the client's logger.
func (c *Client) Logger() hclog.Logger { return c.logger }

// Clock returns the client's clock.
func (c *Client) Clock() Clock { return c.clock }

// AddListener registers l for refresh notifications.
func (c *Client) AddListener(l ClientListener) { c.listeners.Add(l) }

// RemoveListener unregisters l.
func (c *Client) RemoveListener(l ClientListener) { c.listeners.Remove(l) }

// Subscribe registers h for the client's events. The returned func
// unsubscribes it.
func (c *Client) Subscribe(h EventHandler) (unsubscribe func()) {
	s := &subscription{handler: h}
	c.subscriptions.Add(s)
	return func() { c.subscriptions.Remove(s) }
}

func (c *Client) publish(e Event) {
	c.subscriptions.Each(func(s *subscription) { s.handler(e) })
}

func (c *Client) cacheKey(kind string) (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return kind + "/" + strconv.FormatUint(c.generation, 10), c.generation
}

// OpenIDConfiguration returns the provider's configuration document,
// fetching it on first use. Concurrent callers share a single fetch.
func (c *Client) OpenIDConfiguration(ctx context.Context) (*ProviderMetadata, error) {
	c.mu.Lock()
	if m := c.metadata; m != nil {
		c.mu.Unlock()
		return m, nil
	}
	c.mu.Unlock()

	key, gen := c.cacheKey("openid-configuration")
	return c.discovery.Do(ctx, key, func(ctx context.Context) (*ProviderMetadata, error) {
		c.mu.Lock()
		if m := c.metadata; m != nil && c.generation == gen {
			c.mu.Unlock()
			return m, nil
		}
		cfg := c.config
		c.mu.Unlock()

		m, err := c.fetchMetadata(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.metadata = m
		}
		c.mu.Unlock()
		return m, nil
	})
}

func (c *Client) fetchMetadata(ctx context.Context, cfg *Config) (*ProviderMetadata, error) {
	const op = "Client.fetchMetadata"
	endpoint := cfg.DiscoveryEndpoint()
	c.logger.Debug("fetching openid configuration", "url", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	var m ProviderMetadata
	if err := c.Do(req, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if strings.TrimSuffix(m.Issuer, "/") != strings.TrimSuffix(cfg.Issuer, "/") {
		return nil, fmt.Errorf("%s: issuer %q does not match %q: %w", op, m.Issuer, cfg.Issuer, ErrInvalidIssuer)
	}
	if m.TokenEndpoint == "" {
		return nil, fmt.Errorf("%s: missing token_endpoint: %w", op, ErrInvalidResponse)
	}
	return &m, nil
}

// JWKS returns the provider's key set, fetching the configuration document
// first if needed. Concurrent callers share a single fetch.
func (c *Client) JWKS(ctx context.Context) (*jose.JSONWebKeySet, error) {
	const op = "Client.JWKS"
	c.mu.Lock()
	if k := c.keys; k != nil {
		c.mu.Unlock()
		return k, nil
	}
	c.mu.Unlock()

	meta, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if meta.JWKSURI == "" {
		return nil, fmt.Errorf("%s: jwks_uri: %w", op, ErrMissingEndpoint)
	}

	key, gen := c.cacheKey("jwks")
	return c.keyFetch.Do(ctx, key, func(ctx context.Context) (*jose.JSONWebKeySet, error) {
		c.mu.Lock()
		if k := c.keys; k != nil && c.generation == gen {
			c.mu.Unlock()
			return k, nil
		}
		c.mu.Unlock()

		c.logger.Debug("fetching jwks", "url", meta.JWKSURI)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.JWKSURI, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		req.Header.Set("Accept", "application/json")
		var raw json.RawMessage
		if err := c.Do(req, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys, err := jwt.ParseJWKS(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.mu.Lock()
		if c.generation == gen {
			c.keys = keys
		}
		c.mu.Unlock()
		return keys, nil
	})
}

// Do sends req and decodes a successful JSON response into out, which may be
// nil. Transport failures wrap ErrTransport; non-2xx responses are returned
// as a *ServerError.
func (c *Client) Do(req *http.Request, out interface{}) error {
	const op = "Client.Do"
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %w", op, parseServerError(resp, body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
	}
	return nil
}

// PostForm sends a form-encoded POST authenticated with the client's
// credentials and decodes the JSON response into out.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	const op = "Client.PostForm"
	cfg := c.currentConfig()
	header := http.Header{}
	if err := cfg.Authentication.apply(cfg.ClientID, form, header); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if err := c.Do(req, out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CaptureRedirect requests u without following redirects and returns the
// redirect's Location. It's used to complete authorization requests which
// need no user interaction.
func (c *Client) CaptureRedirect(ctx context.Context, u string) (*url.URL, error) {
	const op = "Client.CaptureRedirect"
	hc := *c.httpClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if resp.StatusCode < 300 || resp.StatusCode > 399 {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%s: %w", op, parseServerError(resp, body))
		}
		return nil, fmt.Errorf("%s: expected a redirect, got %d: %w", op, resp.StatusCode, ErrInvalidResponse)
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
	}
	return loc, nil
}

// clientOptions is the set of available options.
type clientOptions struct {
	withLogger        hclog.Logger
	withHTTPClient    *http.Client
	withCookieJar     http.CookieJar
	withSecretStore   storage.SecretStore
	withUserAgent     string
	withClock         Clock
	withNow           func() time.Time
	withValidator     TokenValidator
	withRequestHooks  []RequestHook
	withResponseHooks []ResponseHook
}

func clientDefaults() clientOptions {
	return clientOptions{
		withLogger:    hclog.NewNullLogger(),
		withUserAgent: DefaultUserAgent,
		withNow:       time.Now,
	}
}

func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithHTTPClient provides the http client used for provider requests. Its
// transport is wrapped to add the client's headers and hooks.
func WithHTTPClient(hc *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withHTTPClient = hc
		}
	}
}

// WithCookieJar provides the cookie jar, replacing the default in-memory jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withCookieJar = jar
		}
	}
}

// WithSecretStore provides the store of the persisted device identifier,
// which is then sent with every request.
func WithSecretStore(s storage.SecretStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withSecretStore = s
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withUserAgent = ua
		}
	}
}

// WithClock replaces the server skew corrected clock.
func WithClock(c Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withClock = c
		}
	}
}

// WithTokenValidator replaces the id_token validator.
func WithTokenValidator(v TokenValidator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withValidator = v
		}
	}
}

// WithRequestHook adds a hook run on every outgoing request.
func WithRequestHook(h RequestHook) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withRequestHooks = append(o.withRequestHooks, h)
		}
	}
}

// WithResponseHook adds a hook run on every response.
func WithResponseHook(h ResponseHook) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withResponseHooks = append(o.withResponseHooks, h)
		}
	}
}
