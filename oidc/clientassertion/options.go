// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

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

// assertionOptions is the set of available options. Invalid option values
// are collected in errs and reported by the constructors.
type assertionOptions struct {
	withKeyID    string
	withHeaders  map[string]string
	withIssuer   string
	withSubject  string
	withLifetime time.Duration
	withNow      func() time.Time

	errs *multierror.Error
}

func assertionDefaults() assertionOptions {
	return assertionOptions{
		withLifetime: DefaultLifetime,
		withNow:      time.Now,
	}
}

func getAssertionOpts(opt ...Option) assertionOptions {
	opts := assertionDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKeyID sets the "kid" header providers use to find the public key in
// the client's registered JWKS.
func WithKeyID(keyID string) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok {
			if keyID == "" {
				o.errs = multierror.Append(o.errs, fmt.Errorf("WithKeyID: %w", ErrMissingKeyID))
				return
			}
			o.withKeyID = keyID
		}
	}
}

// WithHeaders adds JOSE headers, such as "x5t". The "alg", "kid" and "typ"
// headers can't be set this way.
func WithHeaders(h map[string]string) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok {
			for k := range h {
				switch k {
				case "alg", "kid", "typ":
					o.errs = multierror.Append(o.errs, fmt.Errorf("WithHeaders: %w: %q", ErrReservedHeader, k))
					return
				}
			}
			o.withHeaders = h
		}
	}
}

// WithIssuer overrides the "iss" claim, which defaults to the client id.
func WithIssuer(iss string) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok {
			o.withIssuer = iss
		}
	}
}

// WithSubject overrides the "sub" claim, which defaults to the client id.
// JWT bearer grant assertions name the user or service account here.
func WithSubject(sub string) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok {
			o.withSubject = sub
		}
	}
}

// WithLifetime sets how long each serialized assertion is valid.
func WithLifetime(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok {
			if d <= 0 {
				o.errs = multierror.Append(o.errs, fmt.Errorf("WithLifetime: %w: %s", ErrInvalidLifetime, d))
				return
			}
			o.withLifetime = d
		}
	}
}

// WithNow provides a clock for the "iat", "nbf" and "exp" claims.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*assertionOptions); ok && now != nil {
			o.withNow = now
		}
	}
}
