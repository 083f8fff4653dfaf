// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package listener provides explicit observer registration for clients and
// flows. Listeners are notified from a snapshot taken under the lock, so a
// listener may add or remove listeners while being notified.
package listener

import "sync"

// Set is an ordered collection of listeners of type T. The zero value is
// ready to use.
type Set[T comparable] struct {
	mu    sync.Mutex
	items []T
}

// Add registers l. Adding a listener that is already registered is a no-op.
func (s *Set[T]) Add(l T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing == l {
			return
		}
	}
	s.items = append(s.items, l)
}

// Remove unregisters l and reports whether it was registered.
func (s *Set[T]) Remove(l T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing == l {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot returns a copy of the registered listeners in registration order.
func (s *Set[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Each calls fn for every listener registered at the time of the call.
func (s *Set[T]) Each(fn func(T)) {
	for _, l := range s.Snapshot() {
		fn(l)
	}
}

// Each2 calls fn for every listener of s that also implements U. It's used
// for optional listener capabilities.
func Each2[T comparable, U any](s *Set[T], fn func(U)) {
	for _, l := range s.Snapshot() {
		if u, ok := any(l).(U); ok {
			fn(u)
		}
	}
}
