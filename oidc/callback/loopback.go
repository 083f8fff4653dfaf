// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/authkit/authflow/oidc"
)

// DefaultLoopbackPath is the path a Loopback serves when none is given.
const DefaultLoopbackPath = "/callback"

// Loopback receives a single authorization response on a local address, for
// native and command line clients (RFC 8252 section 7.3).
type Loopback struct {
	ln   net.Listener
	srv  *http.Server
	path string

	once   sync.Once
	result chan loopbackResult
}

type loopbackResult struct {
	token *oidc.Token
	err   error
}

// NewLoopback listens on addr, which defaults to an ephemeral port on
// 127.0.0.1. Serving starts with Serve.
func NewLoopback(addr, path string) (*Loopback, error) {
	const op = "callback.NewLoopback"
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	if path == "" {
		path = DefaultLoopbackPath
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen on %q: %w", op, addr, err)
	}
	return &Loopback{
		ln:     ln,
		path:   path,
		result: make(chan loopbackResult, 1),
	}, nil
}

// RedirectURL is the redirect_uri to register with the flow.
func (l *Loopback) RedirectURL() string {
	return fmt.Sprintf("http://%s%s", l.ln.Addr().String(), l.path)
}

// Serve hands the first response received to r. sFn and eFn render the page
// shown in the user's browser.
func (l *Loopback) Serve(ctx context.Context, r Resumer, sFn SuccessResponseFunc, eFn ErrorResponseFunc) error {
	const op = "Loopback.Serve"
	h, err := Resume(ctx, r,
		func(state string, t *oidc.Token, w http.ResponseWriter, req *http.Request) {
			sFn(state, t, w, req)
			l.deliver(t, nil)
		},
		func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			eFn(state, respErr, e, w, req)
			l.deliver(nil, e)
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	mux := http.NewServeMux()
	mux.Handle(l.path, h)
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(l.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.deliver(nil, fmt.Errorf("%s: %w", op, err))
		}
	}()
	return nil
}

func (l *Loopback) deliver(t *oidc.Token, err error) {
	l.once.Do(func() {
		l.result <- loopbackResult{token: t, err: err}
	})
}

// Wait blocks until a response was handled or ctx is done.
func (l *Loopback) Wait(ctx context.Context) (*oidc.Token, error) {
	select {
	case r := <-l.result:
		return r.token, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the listener.
func (l *Loopback) Close() error {
	if l.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.srv.Shutdown(ctx)
	}
	return l.ln.Close()
}
