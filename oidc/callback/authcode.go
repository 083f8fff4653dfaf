// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/authkit/authflow/oidc"
)

// ErrExpiredState is passed to the ErrorResponseFunc when the response's
// FlowContext has expired.
var ErrExpiredState = errors.New("authentication state is expired")

// AuthCode creates an oidc authorization code callback handler which
// uses a StateReader to read existing oidc.FlowContext(s) via the request's
// oidc "state" parameter as a key for the lookup, and exchanges the code with
// the client.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(ctx context.Context, c *oidc.Client, sr StateReader, redirectURI string, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, oidc.ErrInvalidParameter)
	case sr == nil:
		return nil, fmt.Errorf("%s: state reader is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		reqState := req.FormValue("state")

		if authErr := authenError(req); authErr != nil {
			eFn(reqState, authErr, nil, w, req)
			return
		}

		fc, err := sr.Read(ctx, reqState)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to read auth code state: %w", op, err), w, req)
			return
		}
		if fc.IsExpired() {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, ErrExpiredState), w, req)
			return
		}
		if reqState != fc.State {
			// the reader didn't return the correct context for the key
			// given, which is a bug in the reader.
			eFn(reqState, nil, fmt.Errorf("%s: authen state and response state are not equal: %w", op, oidc.ErrInvalidParameter), w, req)
			return
		}

		tr, err := oidc.NewAuthorizationCodeRequest(req.FormValue("code"), redirectURI, fc)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		t, err := c.Exchange(ctx, tr)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err), w, req)
			return
		}
		sFn(reqState, t, w, req)
	}, nil
}

// Resumer completes a flow from the provider's redirect.
type Resumer interface {
	Resume(ctx context.Context, redirect *url.URL) (*oidc.Token, error)
}

// Resume creates a callback handler which hands the redirect to a flow that
// holds its own FlowContext.
func Resume(ctx context.Context, r Resumer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.Resume"
	switch {
	case r == nil:
		return nil, fmt.Errorf("%s: resumer is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		reqState := req.FormValue("state")
		t, err := r.Resume(ctx, req.URL)
		if err != nil {
			var se *oidc.ServerError
			if errors.As(err, &se) && se.StatusCode == 0 {
				eFn(reqState, &AuthenErrorResponse{Error: se.Code, Description: se.Description, URI: se.URI}, err, w, req)
				return
			}
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(reqState, t, w, req)
	}, nil
}
