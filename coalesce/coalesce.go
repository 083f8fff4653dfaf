// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package coalesce provides a keyed single-flight group: while a fetch for a
// key is outstanding, every other caller for the same key joins it and
// receives the same result instead of starting another fetch. Once the fetch
// completes the key is cleared, so the next caller fetches again. Failures
// are shared the same way and are never retried.
package coalesce

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc fetches the value for a key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Group coalesces concurrent fetches of values of type T. The zero value is
// ready to use. A Group must not be copied after first use.
type Group[T any] struct {
	sf singleflight.Group

	mu       sync.Mutex
	inFlight map[string]int
}

// Do returns the result of fetch for key, running fetch only if no fetch for
// key is already in flight. The fetch runs with a context which carries the
// values of the first caller's ctx but not its cancellation, so a cancelled
// caller doesn't fail the other waiters. A caller whose ctx is done stops
// waiting and returns ctx.Err().
func (g *Group[T]) Do(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	v, _, err := g.DoShared(ctx, key, fetch)
	return v, err
}

// DoShared is Do, also reporting whether the result was delivered to more
// than one caller.
func (g *Group[T]) DoShared(ctx context.Context, key string, fetch FetchFunc[T]) (T, bool, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (interface{}, error) {
		g.track(key, 1)
		defer g.track(key, -1)
		return fetch(fetchCtx)
	})
	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Shared, res.Err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Perform is the completion form of Do. If no fetch for key is in flight,
// startFetch is invoked on a new goroutine and must call finish exactly once;
// later calls of finish are ignored. completion is called with the shared
// result on its own goroutine, for every caller.
func (g *Group[T]) Perform(key string, completion func(T, error), startFetch func(finish func(T, error))) {
	go func() {
		v, err := g.Do(context.Background(), key, func(context.Context) (T, error) {
			type result struct {
				v   T
				err error
			}
			done := make(chan result, 1)
			var once sync.Once
			startFetch(func(v T, err error) {
				once.Do(func() { done <- result{v: v, err: err} })
			})
			r := <-done
			return r.v, r.err
		})
		if completion != nil {
			completion(v, err)
		}
	}()
}

// InFlight reports whether a fetch for key is currently running.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[key] > 0
}

// Forget makes the next call for key start a new fetch even if one is still
// in flight. Callers already waiting still receive the old fetch's result.
func (g *Group[T]) Forget(key string) {
	g.sf.Forget(key)
}

func (g *Group[T]) track(key string, delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == nil {
		g.inFlight = map[string]int{}
	}
	g.inFlight[key] += delta
	if g.inFlight[key] <= 0 {
		delete(g.inFlight, key)
	}
}
