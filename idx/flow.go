// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/authkit/authflow/flow"
	"github.com/authkit/authflow/internal/listener"
	"github.com/authkit/authflow/oidc"
)

const (
	interactPath   = "/v1/interact"
	introspectPath = "/idp/idx/introspect"
	maxIONSize     = 4 << 20
)

// Context is what an interaction keeps between steps.
type Context struct {
	InteractionHandle string
	FlowContext       *oidc.FlowContext
}

// RedirectResult classifies a redirect from an external identity provider.
type RedirectResult int

const (
	// RedirectInvalidContext: the flow wasn't started, the state doesn't
	// match, or the redirect carries neither outcome.
	RedirectInvalidContext RedirectResult = iota
	// RedirectInvalidURL: the redirect isn't to the configured redirect URL.
	RedirectInvalidURL
	// RedirectAuthenticated: the redirect carries an interaction code.
	RedirectAuthenticated
	// RedirectRemediationRequired: the user must complete more steps;
	// call Resume.
	RedirectRemediationRequired
)

func (r RedirectResult) String() string {
	switch r {
	case RedirectInvalidURL:
		return "invalid-redirect-url"
	case RedirectAuthenticated:
		return "authenticated"
	case RedirectRemediationRequired:
		return "remediation-required"
	default:
		return "invalid-context"
	}
}

// InteractionCodeFlow drives an identity engine interaction. A failed step
// is reported to listeners but leaves the interaction in place, so the
// caller can retry or choose another remediation; ExchangeCode, Cancel and
// Reset end it.
type InteractionCodeFlow struct {
	client    *oidc.Client
	logger    hclog.Logger
	pkce      bool
	listeners listener.Set[flow.Listener]

	mu             sync.Mutex
	authenticating bool
	generation     uint64
	ictx           *Context
}

// NewInteractionCodeFlow creates a flow for c. The client's configuration
// must have a RedirectURL.
//
// Supported options:
//   - WithLogger
//   - WithListener
//   - WithoutPKCESupport
func NewInteractionCodeFlow(c *oidc.Client, opt ...Option) (*InteractionCodeFlow, error) {
	const op = "idx.NewInteractionCodeFlow"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, ErrInvalidParameter)
	}
	if c.Config().RedirectURL == "" {
		return nil, fmt.Errorf("%s: redirect url is not configured: %w", op, ErrInvalidParameter)
	}
	opts := getFlowOpts(opt...)
	f := &InteractionCodeFlow{
		client: c,
		logger: opts.withLogger,
		pkce:   opts.withPKCE,
	}
	if f.logger == nil {
		f.logger = c.Logger()
	}
	for _, l := range opts.withListeners {
		f.listeners.Add(l)
	}
	return f, nil
}

// AddListener registers l.
func (f *InteractionCodeFlow) AddListener(l flow.Listener) { f.listeners.Add(l) }

// RemoveListener unregisters l.
func (f *InteractionCodeFlow) RemoveListener(l flow.Listener) { f.listeners.Remove(l) }

// IsAuthenticating reports whether an interaction is in progress.
func (f *InteractionCodeFlow) IsAuthenticating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authenticating
}

// Context returns the current interaction, or nil.
func (f *InteractionCodeFlow) Context() *Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ictx == nil {
		return nil
	}
	c := *f.ictx
	return &c
}

// Reset is Cancel.
func (f *InteractionCodeFlow) Reset() { f.Cancel() }

// Cancel ends the interaction locally and removes the idx session cookies
// of the issuer's host, at "/" and along the issuer's path. To also end it on the server, proceed with the
// response's CancelRemediation first.
func (f *InteractionCodeFlow) Cancel() {
	f.mu.Lock()
	f.generation++
	f.ictx = nil
	f.mu.Unlock()
	f.purgeCookies()
	f.setAuthenticating(false)
}

func (f *InteractionCodeFlow) setAuthenticating(v bool) {
	f.mu.Lock()
	if f.authenticating == v {
		f.mu.Unlock()
		return
	}
	f.authenticating = v
	f.mu.Unlock()
	if v {
		f.listeners.Each(func(l flow.Listener) { l.AuthenticationStarted(f) })
		return
	}
	f.listeners.Each(func(l flow.Listener) { l.AuthenticationFinished(f) })
}

func (f *InteractionCodeFlow) snapshot() (*Context, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ictx, f.generation
}

// failed reports err to listeners unless the interaction was reset since
// gen, and returns err.
func (f *InteractionCodeFlow) failed(gen uint64, err error) error {
	f.mu.Lock()
	stale := f.generation != gen
	f.mu.Unlock()
	if stale {
		return fmt.Errorf("%w: %w", flow.ErrFlowReset, err)
	}
	f.listeners.Each(func(l flow.Listener) { l.AuthenticationFailed(f, err) })
	return err
}

// complete ends the interaction started in gen once, whatever err is.
func (f *InteractionCodeFlow) complete(gen uint64, err error) error {
	f.mu.Lock()
	if f.generation != gen {
		f.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %w", flow.ErrFlowReset, err)
		}
		return flow.ErrFlowReset
	}
	f.generation++
	f.ictx = nil
	f.mu.Unlock()
	f.purgeCookies()
	if err != nil {
		f.listeners.Each(func(l flow.Listener) { l.AuthenticationFailed(f, err) })
	}
	f.setAuthenticating(false)
	return err
}

// Start begins an interaction and returns the first Response. An
// interaction in progress is cancelled first. The options are those of
// oidc.NewFlowContext; a PKCE verifier is required.
func (f *InteractionCodeFlow) Start(ctx context.Context, opt ...oidc.Option) (*Response, error) {
	const op = "InteractionCodeFlow.Start"
	if f.IsAuthenticating() {
		f.logger.Debug("cancelling interaction in progress")
		f.Cancel()
	}
	if !f.pkce {
		return nil, fmt.Errorf("%s: %w", op, ErrPlatformUnsupported)
	}
	fc, err := oidc.NewFlowContext(opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if fc.PKCE == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrPlatformUnsupported)
	}

	f.mu.Lock()
	f.generation++
	gen := f.generation
	f.mu.Unlock()
	f.setAuthenticating(true)

	handle, err := f.interact(ctx, fc)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	f.mu.Lock()
	if f.generation != gen {
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, flow.ErrFlowReset)
	}
	f.ictx = &Context{InteractionHandle: handle, FlowContext: fc}
	f.mu.Unlock()
	f.logger.Debug("interaction started")
	return f.Resume(ctx)
}

func (f *InteractionCodeFlow) interact(ctx context.Context, fc *oidc.FlowContext) (string, error) {
	const op = "InteractionCodeFlow.interact"
	cfg := f.client.Config()
	form := url.Values{
		"scope":                 {cfg.ScopeString()},
		"redirect_uri":          {cfg.RedirectURL},
		"state":                 {fc.State},
		"nonce":                 {fc.Nonce},
		"code_challenge":        {fc.PKCE.Challenge()},
		"code_challenge_method": {string(fc.PKCE.Method())},
	}
	for _, params := range []map[string]string{cfg.AdditionalParameters, fc.AdditionalParameters} {
		for k, v := range params {
			form.Set(k, v)
		}
	}
	var out struct {
		InteractionHandle string `json:"interaction_handle"`
	}
	if err := f.client.PostForm(ctx, interactURL(cfg.Issuer), form, &out); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if out.InteractionHandle == "" {
		return "", fmt.Errorf("%s: interaction handle missing: %w", op, ErrInvalidResponse)
	}
	return out.InteractionHandle, nil
}

// Resume introspects the interaction and returns its current Response.
func (f *InteractionCodeFlow) Resume(ctx context.Context) (*Response, error) {
	const op = "InteractionCodeFlow.Resume"
	ic, gen := f.snapshot()
	if ic == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidContext)
	}
	body := map[string]string{"interactionHandle": ic.InteractionHandle}
	u := baseURL(f.client.Config().Issuer) + introspectPath
	resp, err := f.send(ctx, http.MethodPost, u, "", body)
	if err != nil {
		return nil, f.failed(gen, fmt.Errorf("%s: %w", op, err))
	}
	if _, current := f.snapshot(); current != gen {
		return nil, fmt.Errorf("%s: %w", op, flow.ErrFlowReset)
	}
	return resp, nil
}

// Proceed submits rem with params, resolved against its form by
// Form.Resolve, and returns the next Response. A response rejecting the
// values, such as a wrong password, is returned with its Messages rather
// than as an error.
func (f *InteractionCodeFlow) Proceed(ctx context.Context, rem *Remediation, params map[string]interface{}) (*Response, error) {
	const op = "InteractionCodeFlow.Proceed"
	if rem == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingRemediation)
	}
	if rem.Type == Issue {
		return nil, fmt.Errorf("%s: the issue remediation is exchanged with ExchangeCode: %w", op, ErrInvalidParameter)
	}
	ic, gen := f.snapshot()
	if ic == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidContext)
	}
	payload, err := rem.Form.Resolve(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, rem.Name, err)
	}
	method := rem.Method
	if method == "" {
		method = http.MethodPost
	}
	f.logger.Debug("proceeding", "remediation", rem.Name)
	resp, err := f.send(ctx, method, rem.Href, rem.Accepts, payload)
	if err != nil {
		return nil, f.failed(gen, fmt.Errorf("%s: %s: %w", op, rem.Name, err))
	}
	if _, current := f.snapshot(); current != gen {
		return nil, fmt.Errorf("%s: %w", op, flow.ErrFlowReset)
	}
	return resp, nil
}

// Poll waits for rem's poll interval and proceeds with it.
func (f *InteractionCodeFlow) Poll(ctx context.Context, rem *Remediation) (*Response, error) {
	const op = "InteractionCodeFlow.Poll"
	if rem == nil || rem.Poll == nil {
		return nil, fmt.Errorf("%s: remediation isn't pollable: %w", op, ErrInvalidParameter)
	}
	t := time.NewTimer(rem.Poll.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	case <-t.C:
	}
	return f.Proceed(ctx, rem, nil)
}

// ExchangeCode exchanges the interaction code of a successful response for
// a token. The interaction ends whether or not the exchange succeeds.
func (f *InteractionCodeFlow) ExchangeCode(ctx context.Context, resp *Response) (*oidc.Token, error) {
	const op = "InteractionCodeFlow.ExchangeCode"
	if resp == nil || !resp.IsLoginSuccessful() {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingRemediation)
	}
	ic, gen := f.snapshot()
	if ic == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidContext)
	}
	success := resp.SuccessRemediation()
	params := map[string]interface{}{}
	if success.Form.Field("code_verifier") != nil {
		params["code_verifier"] = ic.FlowContext.PKCE.Verifier()
	}
	payload, err := success.Form.Resolve(params)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	code, ok := payload.Get("interaction_code")
	if !ok {
		return nil, f.complete(gen, fmt.Errorf("%s: interaction code: %w", op, ErrMissingRequiredParameter))
	}
	r, err := f.interactionCodeRequest(fmt.Sprint(code), ic.FlowContext)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	r.Endpoint = success.Href
	t, err := f.client.Exchange(ctx, r)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if err := f.complete(gen, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// RedirectResult classifies a redirect from an external identity provider
// against the interaction. It changes nothing.
func (f *InteractionCodeFlow) RedirectResult(u *url.URL) RedirectResult {
	ic, _ := f.snapshot()
	if ic == nil || u == nil {
		return RedirectInvalidContext
	}
	q := u.Query()
	if q.Get("state") != ic.FlowContext.State {
		return RedirectInvalidContext
	}
	redirect, err := url.Parse(f.client.Config().RedirectURL)
	if err != nil || u.Scheme != redirect.Scheme || u.Path != redirect.Path {
		return RedirectInvalidURL
	}
	switch {
	case q.Get("interaction_code") != "":
		return RedirectAuthenticated
	case q.Get("error") == oidc.ErrCodeInteractionRequired:
		return RedirectRemediationRequired
	default:
		return RedirectInvalidContext
	}
}

// ExchangeRedirectCode exchanges the interaction code of an authenticated
// redirect for a token, ending the interaction.
func (f *InteractionCodeFlow) ExchangeRedirectCode(ctx context.Context, u *url.URL) (*oidc.Token, error) {
	const op = "InteractionCodeFlow.ExchangeRedirectCode"
	switch result := f.RedirectResult(u); result {
	case RedirectAuthenticated:
	case RedirectRemediationRequired:
		return nil, fmt.Errorf("%s: remediation required, resume the interaction: %w", op, ErrMissingRemediation)
	case RedirectInvalidURL:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRedirect)
	default:
		return nil, fmt.Errorf("%s: %s: %w", op, result, ErrInvalidContext)
	}
	ic, gen := f.snapshot()
	if ic == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidContext)
	}
	r, err := f.interactionCodeRequest(u.Query().Get("interaction_code"), ic.FlowContext)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	t, err := f.client.Exchange(ctx, r)
	if err != nil {
		return nil, f.complete(gen, fmt.Errorf("%s: %w", op, err))
	}
	if err := f.complete(gen, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// send posts body as JSON and parses the ION response. Error statuses whose
// body is an ION document with remediations or messages are returned as a
// Response.
func (f *InteractionCodeFlow) send(ctx context.Context, method, href, contentType string, body interface{}) (*Response, error) {
	const op = "InteractionCodeFlow.send"
	if href == "" {
		return nil, fmt.Errorf("%s: remediation has no href: %w", op, ErrInvalidParameter)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, href, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if contentType == "" {
		contentType = ionContentType
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", ionAccept)

	hresp, err := f.client.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrTransport, err)
	}
	defer hresp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(hresp.Body, maxIONSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrTransport, err)
	}
	resp, parseErr := ParseResponse(data)
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		if parseErr == nil && (len(resp.Remediations) > 0 || len(resp.Messages) > 0) {
			return resp, nil
		}
		return nil, fmt.Errorf("%s: %w", op, oidc.ServerErrorFromResponse(hresp, data))
	}
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", op, parseErr)
	}
	return resp, nil
}

// interactionCodeRequest builds the token request for an interaction code.
// It carries the same redirect_uri the interact request sent.
func (f *InteractionCodeFlow) interactionCodeRequest(code string, fc *oidc.FlowContext) (*oidc.TokenRequest, error) {
	r, err := oidc.NewInteractionCodeRequest(code, fc)
	if err != nil {
		return nil, err
	}
	r.Parameters.Set("redirect_uri", f.client.Config().RedirectURL)
	return r, nil
}

func (f *InteractionCodeFlow) purgeCookies() {
	jar := f.client.CookieJar()
	if jar == nil {
		return
	}
	if n := purgeIDXCookies(jar, f.client.Config().Issuer); n > 0 {
		f.logger.Debug("removing idx cookies", "count", n)
	}
}

// purgeIDXCookies expires the idx cookies the jar sends to issuer and
// returns how many it found. A jar doesn't report a cookie's path, so each is
// expired at "/" and at every prefix of the issuer's path. Only cookies of
// the issuer's host are removed; one scoped to a parent domain survives.
func purgeIDXCookies(jar http.CookieJar, issuer string) int {
	u, err := url.Parse(strings.TrimSuffix(issuer, "/") + "/")
	if err != nil || u.Host == "" {
		return 0
	}
	var names []string
	for _, c := range jar.Cookies(u) {
		if strings.HasPrefix(strings.ToLower(c.Name), "idx") {
			names = append(names, c.Name)
		}
	}
	if len(names) == 0 {
		return 0
	}
	paths := []string{"/"}
	var prefix string
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg == "" {
			continue
		}
		prefix += "/" + seg
		paths = append(paths, prefix)
	}
	for _, p := range paths {
		expired := make([]*http.Cookie, 0, len(names))
		for _, name := range names {
			expired = append(expired, &http.Cookie{Name: name, Path: p, MaxAge: -1})
		}
		jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: p}, expired)
	}
	return len(names)
}

// interactURL returns the interact endpoint of an authorization server
// issuer. The org authorization server's issuer has no /oauth2 path.
func interactURL(issuer string) string {
	issuer = strings.TrimSuffix(issuer, "/")
	if strings.Contains(issuer, "/oauth2") {
		return issuer + interactPath
	}
	return issuer + "/oauth2" + interactPath
}

// baseURL returns the scheme and host of the issuer.
func baseURL(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil {
		return strings.TrimSuffix(issuer, "/")
	}
	return u.Scheme + "://" + u.Host
}

var _ flow.Flow = (*InteractionCodeFlow)(nil)
