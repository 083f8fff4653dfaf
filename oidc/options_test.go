// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyOpts(t *testing.T) {
	t.Parallel()

	t.Run("nil-options", func(t *testing.T) {
		t.Parallel()
		opts := configDefaults()
		assert.NotPanics(t, func() { ApplyOpts(&opts, nil, WithScopes("email"), nil) })
		assert.Equal(t, []string{"email"}, opts.withScopes)
	})

	// One option list may be handed to several constructors; each keeps
	// only the options for its own struct.
	t.Run("shared-option-list", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		shared := []Option{WithScopes("profile"), WithLoginHint("alice"), WithPrefix("x")}
		cfg := getConfigOpts(shared...)
		fc := getFlowContextOpts(shared...)
		id := getIDOpts(shared...)
		assert.Equal([]string{"profile"}, cfg.withScopes)
		assert.Equal("alice", fc.withLoginHint)
		assert.Equal("x", id.withPrefix)
		assert.Empty(getIDOpts(WithLoginHint("alice")).withPrefix)
	})

	t.Run("non-pointer", func(t *testing.T) {
		t.Parallel()
		assert.NotPanics(t, func() { ApplyOpts(configDefaults(), WithScopes("email")) })
	})
}
