// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/authkit/authflow/internal/listener"
	"github.com/authkit/authflow/oidc"
)

// Flow is implemented by every flow.
type Flow interface {
	// IsAuthenticating reports whether the flow was started and hasn't
	// completed.
	IsAuthenticating() bool

	// Reset discards the flow's context and stops it. It's safe to call in
	// any state, including before the flow was started.
	Reset()
}

// Listener is notified about a flow's progress.
type Listener interface {
	AuthenticationStarted(f Flow)
	AuthenticationFinished(f Flow)
	AuthenticationFailed(f Flow, err error)
}

// URLCustomizer is an optional Listener capability. Flows which produce an
// authorization URL call CustomizeURL last, so listeners can add or change
// query parameters.
type URLCustomizer interface {
	CustomizeURL(f Flow, u *url.URL)
}

// base is the state shared by every flow.
type base struct {
	flow      Flow
	client    *oidc.Client
	logger    hclog.Logger
	listeners listener.Set[Listener]

	mu             sync.Mutex
	authenticating bool
	// generation changes whenever the flow starts, completes or is reset.
	// A call which began in an earlier generation must not change the flow.
	generation uint64
	// clear drops the flow specific context. It's called with mu held.
	clear func()
}

func (b *base) setup(f Flow, c *oidc.Client, opts flowOptions, clear func()) {
	b.flow, b.client, b.logger, b.clear = f, c, opts.withLogger, clear
	if b.logger == nil {
		b.logger = c.Logger()
	}
	for _, l := range opts.withListeners {
		b.listeners.Add(l)
	}
}

// IsAuthenticating reports whether the flow was started and hasn't completed.
func (b *base) IsAuthenticating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authenticating
}

// AddListener registers l.
func (b *base) AddListener(l Listener) { b.listeners.Add(l) }

// RemoveListener unregisters l.
func (b *base) RemoveListener(l Listener) { b.listeners.Remove(l) }

// Reset discards the flow's context. Calls in flight return ErrFlowReset.
func (b *base) Reset() {
	b.mu.Lock()
	b.generation++
	if b.clear != nil {
		b.clear()
	}
	b.mu.Unlock()
	b.setAuthenticating(false)
}

// setAuthenticating notifies listeners only when the value changes.
func (b *base) setAuthenticating(v bool) {
	b.mu.Lock()
	if b.authenticating == v {
		b.mu.Unlock()
		return
	}
	b.authenticating = v
	b.mu.Unlock()
	if v {
		b.listeners.Each(func(l Listener) { l.AuthenticationStarted(b.flow) })
		return
	}
	b.listeners.Each(func(l Listener) { l.AuthenticationFinished(b.flow) })
}

// begin starts a new generation, resetting the flow first when it's already
// authenticating, and runs set with the lock held to install the new
// generation's context.
func (b *base) begin(set func()) uint64 {
	if b.IsAuthenticating() {
		b.logger.Debug("restarting flow which is already authenticating")
		b.Reset()
	}
	b.mu.Lock()
	b.generation++
	gen := b.generation
	if set != nil {
		set()
	}
	b.mu.Unlock()
	b.setAuthenticating(true)
	return gen
}

// current runs fn with the lock held if gen is still the flow's generation.
func (b *base) current(gen uint64, fn func()) error {
	const op = "flow.current"
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation != gen {
		return fmt.Errorf("%s: %w", op, ErrFlowReset)
	}
	if fn != nil {
		fn()
	}
	return nil
}

// complete ends generation gen with err, which is returned. Nothing changes
// when the flow was reset or restarted since gen began; ErrFlowReset is
// returned instead.
func (b *base) complete(gen uint64, err error) error {
	const op = "flow.complete"
	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		b.logger.Debug("discarding result of a reset flow", "error", err)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrFlowReset, err)
		}
		return fmt.Errorf("%s: %w", op, ErrFlowReset)
	}
	b.generation++
	if b.clear != nil {
		b.clear()
	}
	b.mu.Unlock()
	if err != nil {
		b.listeners.Each(func(l Listener) { l.AuthenticationFailed(b.flow, err) })
	}
	b.setAuthenticating(false)
	return err
}

// customize hands u to the URLCustomizer listeners.
func (b *base) customize(u *url.URL) {
	listener.Each2(&b.listeners, func(c URLCustomizer) { c.CustomizeURL(b.flow, u) })
}

// exchange runs a single step flow: it begins a generation, exchanges the
// request built by build and completes.
func (b *base) exchange(ctx context.Context, op string, build func(cfg *oidc.Config) (*oidc.TokenRequest, error)) (*oidc.Token, error) {
	gen := b.begin(nil)
	r, err := build(b.client.Config())
	if err != nil {
		return nil, b.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	t, err := b.client.Exchange(ctx, r)
	if err != nil {
		return nil, b.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if err := b.complete(gen, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}
