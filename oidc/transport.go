// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/http"
)

// DeviceTokenHeader carries the persisted device identifier.
const DeviceTokenHeader = "X-Device-Token"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "authflow-go"

// RequestHook can modify every outgoing request, for instance to add headers
// or cookies.
type RequestHook func(*http.Request)

// ResponseHook observes every response received.
type ResponseHook func(*http.Response)

// hookTransport decorates the client's transport with the standard headers,
// clock skew observation and the configured hooks.
type hookTransport struct {
	base          http.RoundTripper
	userAgent     string
	deviceToken   string
	clock         *SkewClock
	requestHooks  []RequestHook
	responseHooks []ResponseHook
}

// RoundTrip implements http.RoundTripper.
func (t *hookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if t.deviceToken != "" {
		req.Header.Set(DeviceTokenHeader, t.deviceToken)
	}
	for _, h := range t.requestHooks {
		h(req)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.clock != nil {
		t.clock.ObserveResponse(resp)
	}
	for _, h := range t.responseHooks {
		h(resp)
	}
	return resp, nil
}
