// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrUnsupportedAlg             = errors.New("unsupported signing algorithm")
	ErrInvalidConfiguration       = errors.New("invalid configuration")
	ErrMissingConfigFile          = errors.New("missing configuration file")
	ErrUnsupportedConfigVersion   = errors.New("unsupported configuration version")
	ErrMissingClientConfiguration = errors.New("missing client configuration")
	ErrMissingToken               = errors.New("missing token")
	ErrMissingRevokableToken      = errors.New("missing revokable token")
	ErrMissingIDToken             = errors.New("id_token is missing")
	ErrIDTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrMissingEndpoint            = errors.New("provider endpoint not available")
	ErrTransport                  = errors.New("transport failure")
	ErrInvalidResponse            = errors.New("invalid response")
	ErrUserInfoFailed             = errors.New("user info failed")
	ErrIntrospectionFailed        = errors.New("introspection failed")
	ErrNotFound                   = errors.New("not found")
)

// OAuth2 error codes which flows inspect.
const (
	ErrCodeAuthorizationPending = "authorization_pending"
	ErrCodeSlowDown             = "slow_down"
	ErrCodeAccessDenied         = "access_denied"
	ErrCodeExpiredToken         = "expired_token"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeInteractionRequired  = "interaction_required"
)

// ServerError is an error response decoded from the authorization server.
// Both the OAuth2 shape (error, error_description, error_uri) and the vendor
// shape (errorCode, errorSummary, errorCauses) are understood.
type ServerError struct {
	StatusCode  int
	Code        string
	Description string
	URI         string
	Causes      []string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	var b strings.Builder
	b.WriteString("server error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	for _, c := range e.Causes {
		b.WriteString("; ")
		b.WriteString(c)
	}
	return b.String()
}

// IsServerError reports whether err wraps a *ServerError with the given code.
func IsServerError(err error, code string) bool {
	var se *ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// NewServerError returns a *ServerError for an OAuth2 error code, as found in
// redirect query parameters.
func NewServerError(code, description, uri string) *ServerError {
	return &ServerError{Code: code, Description: description, URI: uri}
}

type serverErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorURI         string `json:"error_uri"`
	ErrorCode        string `json:"errorCode"`
	ErrorSummary     string `json:"errorSummary"`
	ErrorCauses      []struct {
		ErrorSummary string `json:"errorSummary"`
	} `json:"errorCauses"`
}

// ServerErrorFromResponse decodes a non-2xx response whose body was read by
// the caller, for requests sent without Client.Do.
func ServerErrorFromResponse(resp *http.Response, body []byte) *ServerError {
	return parseServerError(resp, body)
}

// parseServerError decodes a non-2xx response. When the body is in neither
// known shape, a *ServerError with only the status code is returned.
func parseServerError(resp *http.Response, body []byte) *ServerError {
	se := &ServerError{StatusCode: resp.StatusCode}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			se.RetryAfter = time.Duration(secs) * time.Second
		} else if t, err := http.ParseTime(ra); err == nil {
			se.RetryAfter = time.Until(t)
		}
	}
	var b serverErrorBody
	if err := json.Unmarshal(body, &b); err != nil {
		se.Description = http.StatusText(resp.StatusCode)
		return se
	}
	switch {
	case b.Error != "":
		se.Code = b.Error
		se.Description = b.ErrorDescription
		se.URI = b.ErrorURI
	case b.ErrorCode != "":
		se.Code = b.ErrorCode
		se.Description = b.ErrorSummary
		for _, c := range b.ErrorCauses {
			se.Causes = append(se.Causes, c.ErrorSummary)
		}
	default:
		se.Description = http.StatusText(resp.StatusCode)
	}
	return se
}

// MissingTokenError reports which of a token's values an operation needed
// but the token lacks. It unwraps to ErrMissingRevokableToken when the value
// was to be revoked and to ErrMissingToken otherwise.
type MissingTokenError struct {
	Kind      TokenKind
	Revocable bool
}

// Error implements the error interface.
func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Unwrap(), e.Kind)
}

// Unwrap returns the sentinel error matching the failed operation.
func (e *MissingTokenError) Unwrap() error {
	if e.Revocable {
		return ErrMissingRevokableToken
	}
	return ErrMissingToken
}

// RevokeError is returned by Client.Revoke with RevokeAll when one or more of
// the individual revocations failed. Errors holds the failure of each failed
// token type.
type RevokeError struct {
	Errors map[RevokeType]error
}

// Error implements the error interface.
func (e *RevokeError) Error() string {
	var result *multierror.Error
	for _, t := range e.types() {
		result = multierror.Append(result, fmt.Errorf("%s: %w", t, e.Errors[t]))
	}
	if result == nil {
		return "revoke failed"
	}
	result.ErrorFormat = func(errs []error) string {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Sprintf("revoke failed: %s", strings.Join(msgs, "; "))
	}
	return result.Error()
}

// Unwrap returns the individual revocation errors so errors.Is and errors.As
// can inspect them.
func (e *RevokeError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, t := range e.types() {
		errs = append(errs, e.Errors[t])
	}
	return errs
}

func (e *RevokeError) types() []RevokeType {
	types := make([]RevokeType, 0, len(e.Errors))
	for t := range e.Errors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
