// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/http"
	"sync"
	"time"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SkewClock is a Clock corrected by the offset between the local clock and
// the authorization server's, as observed from HTTP Date response headers.
// Offsets under a second are ignored because Date has second precision.
type SkewClock struct {
	mu     sync.RWMutex
	now    func() time.Time
	offset time.Duration
}

// NewSkewClock returns a SkewClock over now, or time.Now when now is nil.
func NewSkewClock(now func() time.Time) *SkewClock {
	if now == nil {
		now = time.Now
	}
	return &SkewClock{now: now}
}

// Now returns the local time adjusted by the observed server offset.
func (c *SkewClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

// Offset returns the current server offset.
func (c *SkewClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Observe records the server's time.
func (c *SkewClock) Observe(serverTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	off := serverTime.Sub(c.now())
	if off > -time.Second && off < time.Second {
		off = 0
	}
	c.offset = off.Truncate(time.Second)
}

// ObserveResponse records the Date header of resp, if any.
func (c *SkewClock) ObserveResponse(resp *http.Response) {
	if resp == nil {
		return
	}
	raw := resp.Header.Get("Date")
	if raw == "" {
		return
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return
	}
	c.Observe(t)
}
