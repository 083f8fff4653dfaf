// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseServerError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   *ServerError
	}{
		{
			name:   "oauth2",
			status: http.StatusBadRequest,
			body:   `{"error":"invalid_grant","error_description":"The refresh token is invalid.","error_uri":"https://example.com/e"}`,
			want: &ServerError{
				StatusCode:  http.StatusBadRequest,
				Code:        "invalid_grant",
				Description: "The refresh token is invalid.",
				URI:         "https://example.com/e",
			},
		},
		{
			name:   "vendor",
			status: http.StatusForbidden,
			body:   `{"errorCode":"E0000006","errorSummary":"You do not have permission","errorCauses":[{"errorSummary":"cause one"}]}`,
			want: &ServerError{
				StatusCode:  http.StatusForbidden,
				Code:        "E0000006",
				Description: "You do not have permission",
				Causes:      []string{"cause one"},
			},
		},
		{
			name:   "not-json",
			status: http.StatusBadGateway,
			body:   "<html>bad gateway</html>",
			want:   &ServerError{StatusCode: http.StatusBadGateway, Description: "Bad Gateway"},
		},
		{
			name:   "retry-after",
			status: http.StatusTooManyRequests,
			header: http.Header{"Retry-After": {"7"}},
			body:   `{"error":"slow_down"}`,
			want:   &ServerError{StatusCode: http.StatusTooManyRequests, Code: "slow_down", RetryAfter: 7 * time.Second},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			got := parseServerError(&http.Response{StatusCode: tt.status, Header: header}, []byte(tt.body))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerError(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	se := &ServerError{StatusCode: 400, Code: "invalid_grant", Description: "bad", Causes: []string{"one"}}
	assert.Equal("server error (400): invalid_grant: bad; one", se.Error())

	wrapped := fmt.Errorf("outer: %w", se)
	assert.True(IsServerError(wrapped, "invalid_grant"))
	assert.False(IsServerError(wrapped, "slow_down"))
	assert.False(IsServerError(errors.New("plain"), "invalid_grant"))

	assert.Equal("server error: access_denied: denied", NewServerError("access_denied", "denied", "").Error())
}

func TestRevokeError(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	access := errors.New("access failed")
	device := NewServerError("invalid_request", "nope", "")
	err := &RevokeError{Errors: map[RevokeType]error{
		RevokeDeviceSecret: device,
		RevokeAccessToken:  access,
	}}
	assert.Equal("revoke failed: access_token: access failed; device_secret: server error: invalid_request: nope", err.Error())
	assert.True(errors.Is(err, access))
	assert.True(IsServerError(err, "invalid_request"))
	assert.Equal([]error{access, device}, err.Unwrap())
	assert.Equal("revoke failed", (&RevokeError{}).Error())
}

func TestMissingTokenError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		err       *MissingTokenError
		wantIs    error
		wantNotIs error
		wantMsg   string
	}{
		{
			name:      "missing",
			err:       &MissingTokenError{Kind: RefreshTokenKind},
			wantIs:    ErrMissingToken,
			wantNotIs: ErrMissingRevokableToken,
			wantMsg:   "missing token: refresh_token",
		},
		{
			name:      "revocable",
			err:       &MissingTokenError{Kind: DeviceSecretKind, Revocable: true},
			wantIs:    ErrMissingRevokableToken,
			wantNotIs: ErrMissingToken,
			wantMsg:   "missing revokable token: device_secret",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(tt.wantMsg, tt.err.Error())
			assert.Truef(errors.Is(wrapped, tt.wantIs), "wanted \"%s\" but got \"%s\"", tt.wantIs, wrapped)
			assert.False(errors.Is(wrapped, tt.wantNotIs))
			var mte *MissingTokenError
			assert.True(errors.As(wrapped, &mte))
			assert.Equal(tt.err.Kind, mte.Kind)
		})
	}
}
