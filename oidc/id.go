// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"

	"github.com/authkit/authflow/sdk/id"
)

// DefaultIDLength is the default length for generated IDs, which are used for
// state and nonce parameters during OIDC flows.
const DefaultIDLength = id.DefaultLen

// NewID generates an ID with an optional prefix. The ID generated is suitable
// for a State's ID or Nonce.
//
// Supported options:
//   - WithPrefix
func NewID(opt ...Option) (string, error) {
	const op = "NewID"
	opts := getIDOpts(opt...)
	s, err := id.New(opts.withPrefix)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrIDGeneratorFailed, err)
	}
	return s, nil
}

// idOptions is the set of available options.
type idOptions struct {
	withPrefix string
}

func idDefaults() idOptions {
	return idOptions{}
}

func getIDOpts(opt ...Option) idOptions {
	opts := idDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithPrefix provides an optional prefix for a new ID. When this option is
// provided, NewID will prepend the prefix and an underscore to the new
// identifier.
func WithPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*idOptions); ok {
			o.withPrefix = prefix
		}
	}
}
