// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/authkit/authflow/oidc"
)

const (
	// DefaultPollInterval is used when the provider doesn't send an
	// interval (RFC 8628 section 3.2).
	DefaultPollInterval = 5 * time.Second

	// DefaultSlowDownInterval is added to the poll interval with each
	// slow_down response.
	DefaultSlowDownInterval = 5 * time.Second
)

// Verification is a device authorization response: the user visits
// VerificationURI and enters UserCode while the device polls.
type Verification struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
	Interval                time.Duration
	// ExpiresAt is when the device code stops being valid, zero when the
	// provider gave no lifetime.
	ExpiresAt time.Time
}

type verificationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURL         string `json:"verification_url"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`
}

// DeviceAuthorizationFlow is the device authorization grant (RFC 8628).
type DeviceAuthorizationFlow struct {
	base
	slowDown time.Duration
	wait     func(ctx context.Context, d time.Duration) error
	now      func() time.Time

	verification *Verification
	interval     time.Duration
	stopPolling  context.CancelFunc
}

// NewDeviceAuthorizationFlow creates a flow for c.
//
// Supported options:
//   - WithLogger
//   - WithListener
//   - WithSlowDownInterval
//   - WithWait
//   - WithNow
func NewDeviceAuthorizationFlow(c *oidc.Client, opt ...Option) *DeviceAuthorizationFlow {
	opts := getFlowOpts(opt...)
	f := &DeviceAuthorizationFlow{
		slowDown: opts.withSlowDown,
		wait:     opts.withWait,
		now:      opts.withNow,
	}
	f.setup(f, c, opts, func() {
		if f.stopPolling != nil {
			f.stopPolling()
			f.stopPolling = nil
		}
		f.verification = nil
		f.interval = 0
	})
	return f
}

// Interval returns the current poll interval, which grows with every
// slow_down response.
func (f *DeviceAuthorizationFlow) Interval() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interval
}

// Verification returns the verification of the current authentication, or
// nil.
func (f *DeviceAuthorizationFlow) Verification() *Verification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verification
}

// Start requests a device code. The user must complete the Verification
// while Resume polls for the token.
func (f *DeviceAuthorizationFlow) Start(ctx context.Context) (*Verification, error) {
	const op = "DeviceAuthorizationFlow.Start"
	gen := f.begin(nil)
	md, err := f.client.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if md.DeviceAuthorizationEndpoint == "" {
		return nil, f.complete(gen, fmt.Errorf("%s: device authorization endpoint: %w", op, oidc.ErrMissingEndpoint))
	}
	cfg := f.client.Config()
	form := url.Values{"scope": {cfg.ScopeString()}}
	for k, v := range cfg.AdditionalParameters {
		form.Set(k, v)
	}
	var resp verificationResponse
	if err := f.client.PostForm(ctx, md.DeviceAuthorizationEndpoint, form, &resp); err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		return nil, f.complete(gen, fmt.Errorf("%s: device or user code missing: %w", op, oidc.ErrInvalidResponse))
	}
	v := &Verification{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		ExpiresIn:               time.Duration(resp.ExpiresIn) * time.Second,
		Interval:                time.Duration(resp.Interval) * time.Second,
	}
	if v.VerificationURI == "" {
		v.VerificationURI = resp.VerificationURL
	}
	if v.Interval <= 0 {
		v.Interval = DefaultPollInterval
	}
	if v.ExpiresIn > 0 {
		v.ExpiresAt = f.now().Add(v.ExpiresIn)
	}
	if err := f.current(gen, func() {
		f.verification = v
		f.interval = v.Interval
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Resume polls for the token until the user completes the verification, the
// verification expires, an error other than authorization_pending or
// slow_down is returned, ctx is done or the flow is Reset.
func (f *DeviceAuthorizationFlow) Resume(ctx context.Context) (*oidc.Token, error) {
	const op = "DeviceAuthorizationFlow.Resume"
	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		v   *Verification
		gen uint64
	)
	f.mu.Lock()
	v, gen = f.verification, f.generation
	if v != nil {
		if f.stopPolling != nil {
			f.stopPolling()
		}
		f.stopPolling = cancel
	}
	f.mu.Unlock()
	if v == nil {
		return nil, fmt.Errorf("%s: flow was not started: %w", op, ErrInvalidContext)
	}

	r, err := oidc.NewDeviceCodeRequest(v.DeviceCode)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	for {
		interval := f.Interval()
		if err := f.wait(pollCtx, interval); err != nil {
			return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
		}
		if !v.ExpiresAt.IsZero() && f.now().After(v.ExpiresAt) {
			return nil, f.complete(gen, fmt.Errorf("%s: %w", op, ErrVerificationExpired))
		}
		t, err := f.client.Exchange(pollCtx, r)
		switch {
		case err == nil:
			if err := f.complete(gen, nil); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			return t, nil
		case oidc.IsServerError(err, oidc.ErrCodeAuthorizationPending):
			f.logger.Debug("authorization pending", "interval", interval)
		case oidc.IsServerError(err, oidc.ErrCodeSlowDown):
			var next time.Duration
			if err := f.current(gen, func() {
				f.interval += f.slowDown
				next = f.interval
			}); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			f.logger.Debug("slowing down device polling", "interval", next)
		default:
			return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
		}
	}
}
