// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/authkit/authflow/oidc"
)

// SuccessResponseFunc is used by Callbacks to create a http response when the
// callback is successful.
//
// The function state parameter will contain the state that was returned as
// part of a successful oidc authentication response. The oidc.Token is the
// result of a successful token exchange with the provider.  The function
// should use the http.ResponseWriter to send back whatever content (headers,
// html, JSON, etc) it wishes to the client that originated the oidc flow.
type SuccessResponseFunc func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by Callbacks to create a http response when the
// callback fails.
//
// The function receives the state returned as part of the oidc authentication
// response.  It also gets parameters for the oidc authentication error response
// and/or the callback error raised while processing the request.  The function
// should use the http.ResponseWriter to send back whatever content (headers,
// html, JSON, etc) it wishes to the client that originated the oidc flow.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

func authenError(req *http.Request) *AuthenErrorResponse {
	// get parameters from either the body or query parameters.
	// FormValue prioritizes body values, if found
	e := req.FormValue("error")
	if e == "" {
		return nil
	}
	return &AuthenErrorResponse{
		Error:       e,
		Description: req.FormValue("error_description"),
		URI:         req.FormValue("error_uri"),
	}
}

// ErrCodeCallbackFailed is the AuthenErrorResponse error JSONError reports
// when the provider sent no error of its own.
const ErrCodeCallbackFailed = "callback_failed"

// TextSuccess responds with msg as plain text.
func TextSuccess(msg string) SuccessResponseFunc {
	return func(_ string, _ *oidc.Token, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, msg)
	}
}

// TextError responds with a plain text description of the failure, prefixed
// by msg.
func TextError(msg string) ErrorResponseFunc {
	return func(_ string, r *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(errorStatus(r, e))
		switch {
		case r != nil:
			_, _ = fmt.Fprintf(w, "%s: %s %s\n", msg, r.Error, r.Description)
		case e != nil:
			_, _ = fmt.Fprintf(w, "%s: %s\n", msg, e)
		default:
			_, _ = fmt.Fprintln(w, msg)
		}
	}
}

// JSONError responds with an AuthenErrorResponse. Provider errors are passed
// through; any other failure is reported as ErrCodeCallbackFailed.
func JSONError(_ string, r *AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
	body := r
	if body == nil {
		body = &AuthenErrorResponse{Error: ErrCodeCallbackFailed}
		if e != nil {
			body.Description = e.Error()
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatus(r, e))
	_ = json.NewEncoder(w).Encode(body)
}

// errorStatus is 401 for a provider's error response, 400 for a response to
// an expired flow, and 500 otherwise.
func errorStatus(r *AuthenErrorResponse, e error) int {
	switch {
	case r != nil:
		return http.StatusUnauthorized
	case errors.Is(e, ErrExpiredState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
