// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package http builds the pooled HTTP clients used to reach an authorization
// server.
package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// ErrInvalidCertificatePem is returned when a CA PEM contains no certificates.
var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// Option configures NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	withJar          http.CookieJar
	withTimeout      time.Duration
	withRoundTripper func(http.RoundTripper) http.RoundTripper
}

func getClientOpts(opt ...Option) clientOptions {
	var opts clientOptions
	for _, o := range opt {
		o(&opts)
	}
	return opts
}

// WithCookieJar sets the client's cookie jar.
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *clientOptions) { o.withJar = jar }
}

// WithTimeout sets an overall request timeout. There is no timeout by default.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.withTimeout = d }
}

// WithRoundTripper wraps the pooled transport, typically to inject request
// headers or observe responses.
func WithRoundTripper(wrap func(http.RoundTripper) http.RoundTripper) Option {
	return func(o *clientOptions) { o.withRoundTripper = wrap }
}

// NewClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain.
func NewClient(caPEM string, opt ...Option) (*http.Client, error) {
	const op = "http.NewClient"
	opts := getClientOpts(opt...)
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCertificatePem)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	var rt http.RoundTripper = tr
	if opts.withRoundTripper != nil {
		rt = opts.withRoundTripper(tr)
	}
	return &http.Client{
		Transport: rt,
		Jar:       opts.withJar,
		Timeout:   opts.withTimeout,
	}, nil
}

// ClientContext returns a new Context that carries the provided HTTP client.
// It sets the same context key used by the github.com/coreos/go-oidc and
// golang.org/x/oauth2 packages, so the returned context works for those
// packages as well.
func ClientContext(ctx context.Context, client *http.Client) context.Context {
	return oidc.ClientContext(ctx, client)
}

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
