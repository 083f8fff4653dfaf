// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/authkit/authflow/oidc"
)

// StateReader defines an interface for finding and reading an
// oidc.FlowContext by its state. Implementations must be concurrently safe,
// since the reader will likely be used within a concurrent http.Handler
type StateReader interface {
	// Read an existing FlowContext entry.  The returned context's State
	// must match the state used to look it up.
	Read(ctx context.Context, state string) (*oidc.FlowContext, error)
}

// SingleStateReader implements the StateReader interface for a single
// FlowContext. It is concurrently safe.
type SingleStateReader struct {
	FlowContext *oidc.FlowContext
}

// Read() will return its single context if the state matches its State,
// otherwise it returns an error of oidc.ErrNotFound.
func (s *SingleStateReader) Read(ctx context.Context, state string) (*oidc.FlowContext, error) {
	const op = "SingleStateReader.Read"
	if s.FlowContext == nil || s.FlowContext.State != state {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	return s.FlowContext, nil
}

// MemoryStateStore is a StateReader holding any number of FlowContexts, for
// servers running concurrent flows.
type MemoryStateStore struct {
	mu       sync.Mutex
	contexts map[string]*oidc.FlowContext
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{contexts: map[string]*oidc.FlowContext{}}
}

// Write stores fc under its state.
func (s *MemoryStateStore) Write(fc *oidc.FlowContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[fc.State] = fc
}

// Read implements StateReader. A context is returned only once; reading
// removes it, so a response can't be replayed.
func (s *MemoryStateStore) Read(ctx context.Context, state string) (*oidc.FlowContext, error) {
	const op = "MemoryStateStore.Read"
	s.mu.Lock()
	defer s.mu.Unlock()
	fc, ok := s.contexts[state]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound)
	}
	delete(s.contexts, state)
	return fc, nil
}

// Len returns the number of stored contexts.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contexts)
}
