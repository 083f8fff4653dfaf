// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/authkit/authflow/oidc"
)

// authorizeURL builds the authorization request for fc. extra parameters are
// added after the context's own.
func authorizeURL(ctx context.Context, c *oidc.Client, fc *oidc.FlowContext, extra map[string]string) (*url.URL, error) {
	const op = "flow.authorizeURL"
	cfg := c.Config()
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingRedirectURL)
	}
	md, err := c.OpenIDConfiguration(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if md.AuthorizationEndpoint == "" {
		return nil, fmt.Errorf("%s: authorization endpoint: %w", op, oidc.ErrMissingEndpoint)
	}

	oauth2Config := oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: cfg.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  md.AuthorizationEndpoint,
			TokenURL: md.TokenEndpoint,
		},
		Scopes: strings.Fields(cfg.ScopeString()),
	}
	authCodeOpts := []oauth2.AuthCodeOption{
		gooidc.Nonce(fc.Nonce),
	}
	if fc.PKCE != nil {
		authCodeOpts = append(authCodeOpts, fc.PKCE.AuthCodeOptions()...)
	}
	if fc.MaxAge > 0 {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("max_age", strconv.Itoa(int(fc.MaxAge.Seconds()))))
	}
	if len(fc.ACRValues) > 0 {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("acr_values", strings.Join(fc.ACRValues, " ")))
	}
	if len(fc.Prompts) > 0 {
		prompts := make([]string, 0, len(fc.Prompts))
		for _, p := range fc.Prompts {
			prompts = append(prompts, string(p))
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", strings.Join(prompts, " ")))
	}
	if fc.LoginHint != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("login_hint", fc.LoginHint))
	}
	if len(fc.UILocales) > 0 {
		locales := make([]string, 0, len(fc.UILocales))
		for _, l := range fc.UILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	for _, params := range []map[string]string{cfg.AdditionalParameters, fc.AdditionalParameters, extra} {
		for k, v := range params {
			authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam(k, v))
		}
	}

	u, err := url.Parse(oauth2Config.AuthCodeURL(fc.State, authCodeOpts...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// codeFromRedirect checks the redirect's state against fc and returns its
// authorization code. An error response is returned as an *oidc.ServerError.
func codeFromRedirect(redirect *url.URL, fc *oidc.FlowContext) (string, error) {
	const op = "flow.codeFromRedirect"
	if redirect == nil {
		return "", fmt.Errorf("%s: redirect is nil: %w", op, ErrInvalidParameter)
	}
	q := redirect.Query()
	if q.Get("state") != fc.State {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidState)
	}
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%s: %w", op, oidc.NewServerError(e, q.Get("error_description"), q.Get("error_uri")))
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingCode)
	}
	return code, nil
}
