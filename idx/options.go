// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import (
	"github.com/hashicorp/go-hclog"

	"github.com/authkit/authflow/flow"
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

// flowOptions is the set of available options.
type flowOptions struct {
	withLogger    hclog.Logger
	withListeners []flow.Listener
	withPKCE      bool
}

func flowDefaults() flowOptions {
	return flowOptions{withPKCE: true}
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
func WithListener(l flow.Listener) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withListeners = append(o.withListeners, l)
		}
	}
}

// WithoutPKCESupport makes Start fail with ErrPlatformUnsupported, for
// platforms which can't produce a PKCE verifier.
func WithoutPKCESupport() Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withPKCE = false
		}
	}
}
