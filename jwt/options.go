// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

// validatorOptions is the set of options for a Validator.
type validatorOptions struct {
	withNormalizedAudiences bool
	withRequiredClaims      []string
}

func getValidatorOpts(opt ...Option) validatorOptions {
	var opts validatorOptions
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNormalizedAudiences ignores a trailing slash on both the expected
// audiences and the "aud" claim.
func WithNormalizedAudiences() Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok {
			o.withNormalizedAudiences = true
		}
	}
}

// WithRequiredClaims fails validation with ErrMissingClaim when any of the
// named claims is absent, whatever Expected says. ID tokens require "sub",
// "iat" and "exp" this way.
func WithRequiredClaims(names ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*validatorOptions); ok {
			o.withRequiredClaims = append(o.withRequiredClaims, names...)
		}
	}
}
