// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// flowOptions is the set of options common to every flow.
type flowOptions struct {
	withLogger    hclog.Logger
	withListeners []Listener

	// device flow
	withSlowDown time.Duration
	withWait     func(ctx context.Context, d time.Duration) error
	withNow      func() time.Time
}

func flowDefaults() flowOptions {
	return flowOptions{
		withSlowDown: DefaultSlowDownInterval,
		withWait:     sleep,
		withNow:      time.Now,
	}
}

func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides a logger; the client's logger is used by default.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withLogger = l
		}
	}
}

// WithListener registers a listener when the flow is created.
func WithListener(l Listener) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withListeners = append(o.withListeners, l)
		}
	}
}

// WithSlowDownInterval sets how much a device flow's poll interval grows
// with each slow_down response.
func WithSlowDownInterval(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withSlowDown = d
		}
	}
}

// WithWait replaces how a device flow waits between polls. The function must
// return ctx.Err() when ctx is done before d elapses.
func WithWait(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withWait = fn
		}
	}
}

// WithNow provides the time source a device flow checks the verification's
// expiry with.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withNow = now
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
