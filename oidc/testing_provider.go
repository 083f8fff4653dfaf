// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/authkit/authflow/internal/strutils"
	"github.com/authkit/authflow/jwt"
)

// TestProvider endpoint paths.
const (
	TestDiscoveryPath     = WellKnownPath
	TestAuthorizePath     = "/authorize"
	TestKeysPath          = "/keys"
	TestTokenPath         = "/token"
	TestRevokePath        = "/revoke"
	TestIntrospectPath    = "/introspect"
	TestUserInfoPath      = "/userinfo"
	TestDeviceAuthPath    = "/device/authorize"
	TestLogoutPath        = "/logout"
	TestDefaultClientID   = "test-client"
	TestDefaultExpiresIn  = 3600
	TestDefaultDeviceCode = "test-device-code"
	TestDefaultUserCode   = "ABCD-EFGH"
)

// TestProvider is a local OAuth2/OIDC authorization server for tests. It
// issues RS256 signed id_tokens and supports the authorization code,
// refresh, device, password, token exchange, JWT bearer and interaction code
// grants, plus revocation, introspection, user info and logout. Handlers for
// extra paths can be added with SetHandler.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	signingKey *rsa.PrivateKey
	keyID      string
	jwks       *jose.JSONWebKeySet

	mu                  sync.Mutex
	clientID            string
	clientSecret        string
	subject             string
	userinfo            map[string]interface{}
	allowedRedirectURIs []string
	expectedAuthCode    string
	sessionToken        string
	nonce               string
	codeChallenges      map[string]string
	codeNonces          map[string]string
	codeMaxAges         map[string]bool
	authTime            time.Time
	customClaims        map[string]interface{}
	omitIDToken         bool
	omitRefreshToken    bool
	issueDeviceSecret   bool
	expiresIn           int
	username            string
	password            string
	interactionCode     string
	deviceInterval      int
	deviceResponses     []string
	revokeFailures      map[string]int
	keysStatus          int
	disabled            map[string]bool
	delays              map[string]time.Duration
	calls               map[string]int
	forms               map[string]url.Values
	handlers            map[string]http.Handler
	accessTokens        map[string]bool
	refreshTokens       map[string]bool
	deviceSecrets       map[string]bool
}

// StartTestProvider creates a disposable TestProvider, which is stopped by
// the test's cleanup.
//
// Supported options:
//   - WithTestPort
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		signingKey:     TestGenerateRSAKey(t),
		keyID:          "test-key",
		clientID:       TestDefaultClientID,
		subject:        "alice@example.com",
		userinfo:       map[string]interface{}{"email": "alice@example.com", "name": "Alice"},
		expiresIn:      TestDefaultExpiresIn,
		deviceInterval: 5,
		codeChallenges: map[string]string{},
		codeNonces:     map[string]string{},
		codeMaxAges:    map[string]bool{},
		revokeFailures: map[string]int{},
		disabled:       map[string]bool{},
		delays:         map[string]time.Duration{},
		calls:          map[string]int{},
		forms:          map[string]url.Values{},
		handlers:       map[string]http.Handler{},
		accessTokens:   map[string]bool{},
		refreshTokens:  map[string]bool{},
		deviceSecrets:  map[string]bool{},
	}
	p.jwks = TestJWKS(t, p.keyID, p.signingKey)

	if opts.withPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()
	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() { p.httpServer.Close() }

// Addr returns the provider's base URL, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate of the provider's HTTPS
// server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKey returns the key which signs id_tokens and its key id.
func (p *TestProvider) SigningKey() (*rsa.PrivateKey, string) { return p.signingKey, p.keyID }

// Config returns a Config for the provider using its client id and CA.
func (p *TestProvider) Config(t *testing.T, opt ...Option) *Config {
	t.Helper()
	p.mu.Lock()
	clientID := p.clientID
	p.mu.Unlock()
	c, err := NewConfig(p.Addr(), clientID, append([]Option{WithProviderCA(p.caCert)}, opt...)...)
	require.NoError(t, err)
	return c
}

// SetClientCreds sets the client id, and the secret required when not empty.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode sets the code /authorize issues and /token accepts.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetSessionToken requires /authorize requests to carry sessionToken.
func (p *TestProvider) SetSessionToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionToken = token
}

// SetNonce sets the nonce claim of issued id_tokens, for codes not obtained
// through /authorize.
func (p *TestProvider) SetNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce = nonce
}

// SetAuthTime sets the auth_time claim of id_tokens issued for auth codes.
// Without it, auth_time is the issue time and only emitted when the
// authorize request carried max_age.
func (p *TestProvider) SetAuthTime(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authTime = t
}

// SetAllowedRedirectURIs restricts the redirect_uri accepted by /token. Any
// redirect_uri is accepted when empty.
func (p *TestProvider) SetAllowedRedirectURIs(uris ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims adds claims to issued id_tokens.
func (p *TestProvider) SetCustomClaims(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = claims
}

// SetSubject sets the sub claim of id_tokens and user info.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = sub
}

// SetUserInfo sets the user info claims, besides sub.
func (p *TestProvider) SetUserInfo(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfo = claims
}

// OmitIDTokens stops /token from returning id_tokens.
func (p *TestProvider) OmitIDTokens(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = omit
}

// OmitRefreshTokenOnRefresh stops refresh responses from returning a new
// refresh token.
func (p *TestProvider) OmitRefreshTokenOnRefresh(omit bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = omit
}

// IssueDeviceSecrets makes /token return a device_secret.
func (p *TestProvider) IssueDeviceSecrets(issue bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issueDeviceSecret = issue
}

// SetExpiresIn sets expires_in of issued tokens, in seconds.
func (p *TestProvider) SetExpiresIn(secs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expiresIn = secs
}

// SetUserCredentials sets the username and password the password grant
// accepts.
func (p *TestProvider) SetUserCredentials(username, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.username = username
	p.password = password
}

// SetInteractionCode sets the interaction code the interaction_code grant
// accepts.
func (p *TestProvider) SetInteractionCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactionCode = code
}

// SetDeviceInterval sets the polling interval /device/authorize returns, in
// seconds.
func (p *TestProvider) SetDeviceInterval(secs int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceInterval = secs
}

// SetDeviceResponses scripts the error codes returned by successive device
// code polls, such as authorization_pending or slow_down. Once they're used
// up polls succeed.
func (p *TestProvider) SetDeviceResponses(codes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceResponses = codes
}

// SetRevokeFailure makes revocations with the token type hint fail with the
// status code; zero clears the failure.
func (p *TestProvider) SetRevokeFailure(hint TokenKind, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if status == 0 {
		delete(p.revokeFailures, string(hint))
		return
	}
	p.revokeFailures[string(hint)] = status
}

// SetKeysStatus makes the keys endpoint fail with the status code; zero
// clears the failure.
func (p *TestProvider) SetKeysStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keysStatus = status
}

// DisableEndpoint removes the endpoint at path from the discovery document
// and makes it return 404.
func (p *TestProvider) DisableEndpoint(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[path] = true
}

// SetDelay delays responses to path.
func (p *TestProvider) SetDelay(path string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays[path] = d
}

// SetHandler serves path with h.
func (p *TestProvider) SetHandler(path string, h http.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[path] = h
}

// Calls returns the number of requests received for path.
func (p *TestProvider) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

// LastForm returns the form of the last POST to path.
func (p *TestProvider) LastForm(path string) url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forms[path]
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if req.Method == http.MethodPost {
		_ = req.ParseForm()
	}

	p.mu.Lock()
	p.calls[path]++
	if req.Method == http.MethodPost {
		p.forms[path] = req.PostForm
	}
	delay := p.delays[path]
	h := p.handlers[path]
	disabled := p.disabled[path]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-req.Context().Done():
			return
		}
	}
	if h != nil {
		h.ServeHTTP(w, req)
		return
	}
	if disabled {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch path {
	case TestDiscoveryPath:
		p.handleDiscovery(w, req)
	case TestAuthorizePath:
		p.handleAuthorize(w, req)
	case TestKeysPath:
		p.handleKeys(w, req)
	case TestTokenPath:
		p.handleToken(w, req)
	case TestRevokePath:
		p.handleRevoke(w, req)
	case TestIntrospectPath:
		p.handleIntrospect(w, req)
	case TestUserInfoPath:
		p.handleUserInfo(w, req)
	case TestDeviceAuthPath:
		p.handleDeviceAuthorize(w, req)
	case TestLogoutPath:
		p.handleLogout(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) {
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeError(w http.ResponseWriter, status int, code, desc string) {
	w.WriteHeader(status)
	p.writeJSON(w, map[string]string{"error": code, "error_description": desc})
}

func (p *TestProvider) redirect(w http.ResponseWriter, req *http.Request, redirectURI string, params url.Values) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		p.writeError(w, http.StatusBadRequest, "invalid_request", "bad redirect_uri")
		return
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusFound)
}

func (p *TestProvider) handleDiscovery(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	endpoint := func(path string) string {
		if p.disabled[path] {
			return ""
		}
		return p.Addr() + path
	}
	p.writeJSON(w, &ProviderMetadata{
		Issuer:                        p.Addr(),
		AuthorizationEndpoint:         endpoint(TestAuthorizePath),
		TokenEndpoint:                 endpoint(TestTokenPath),
		UserinfoEndpoint:              endpoint(TestUserInfoPath),
		JWKSURI:                       endpoint(TestKeysPath),
		EndSessionEndpoint:            endpoint(TestLogoutPath),
		DeviceAuthorizationEndpoint:   endpoint(TestDeviceAuthPath),
		RevocationEndpoint:            endpoint(TestRevokePath),
		IntrospectionEndpoint:         endpoint(TestIntrospectPath),
		ScopesSupported:               []string{"openid", "profile", "email", "offline_access"},
		ResponseTypesSupported:        []string{"code"},
		CodeChallengeMethodsSupported: []string{string(S256)},
		GrantTypesSupported: []string{
			GrantAuthorizationCode, GrantRefreshToken, GrantDeviceCode, GrantPassword,
			GrantTokenExchange, GrantJWTBearer, GrantInteractionCode,
		},
		IDTokenSigningAlgValuesSupported: []string{string(jwt.RS256)},
	})
}

func (p *TestProvider) handleAuthorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri")
	if redirectURI == "" {
		p.writeError(w, http.StatusBadRequest, "invalid_request", "missing redirect_uri parameter")
		return
	}
	state := qv.Get("state")
	p.mu.Lock()
	code := p.expectedAuthCode
	if p.sessionToken != "" && qv.Get("sessionToken") != p.sessionToken {
		code = ""
	}
	if code != "" {
		p.codeNonces[code] = qv.Get("nonce")
		p.codeMaxAges[code] = qv.Get("max_age") != ""
		if c := qv.Get("code_challenge"); c != "" {
			p.codeChallenges[code] = c
		}
	}
	p.mu.Unlock()

	switch {
	case qv.Get("response_type") != "code":
		p.redirect(w, req, redirectURI, url.Values{"state": {state}, "error": {"unsupported_response_type"}})
	case state == "":
		p.redirect(w, req, redirectURI, url.Values{"error": {"invalid_request"}, "error_description": {"missing state parameter"}})
	case code == "":
		p.redirect(w, req, redirectURI, url.Values{"state": {state}, "error": {"access_denied"}})
	default:
		p.redirect(w, req, redirectURI, url.Values{"state": {state}, "code": {code}})
	}
}

func (p *TestProvider) handleKeys(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	status := p.keysStatus
	p.mu.Unlock()
	if status != 0 {
		p.writeError(w, status, "server_error", "keys unavailable")
		return
	}
	p.writeJSON(w, p.jwks)
}

func (p *TestProvider) checkClient(w http.ResponseWriter, req *http.Request) bool {
	clientID, secret, basic := req.BasicAuth()
	if basic {
		clientID, _ = url.QueryUnescape(clientID)
		secret, _ = url.QueryUnescape(secret)
	} else {
		clientID = req.PostForm.Get("client_id")
		secret = req.PostForm.Get("client_secret")
	}
	if clientID != p.clientID {
		p.writeError(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return false
	}
	if p.clientSecret != "" && secret != p.clientSecret && req.PostForm.Get("client_assertion") == "" {
		p.writeError(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
		return false
	}
	return true
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checkClient(w, req) {
		return
	}
	form := req.PostForm
	scope := form.Get("scope")
	switch form.Get("grant_type") {
	case GrantAuthorizationCode:
		code := form.Get("code")
		switch {
		case p.expectedAuthCode == "" || code != p.expectedAuthCode:
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "unexpected auth code")
			return
		case len(p.allowedRedirectURIs) > 0 && !strutils.StrListContains(p.allowedRedirectURIs, form.Get("redirect_uri")):
			p.writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		}
		if challenge, ok := p.codeChallenges[code]; ok && oauth2.S256ChallengeFromVerifier(form.Get("code_verifier")) != challenge {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "PKCE verification failed")
			return
		}
		nonce, ok := p.codeNonces[code]
		if !ok {
			nonce = p.nonce
		}
		var extra map[string]interface{}
		if p.codeMaxAges[code] || !p.authTime.IsZero() {
			at := p.authTime
			if at.IsZero() {
				at = time.Now()
			}
			extra = map[string]interface{}{"auth_time": at.Unix()}
		}
		p.issueWithClaims(w, scope, nonce, true, extra)

	case GrantRefreshToken:
		rt := form.Get("refresh_token")
		if !p.refreshTokens[rt] {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "unknown refresh token")
			return
		}
		if p.omitRefreshToken {
			p.issue(w, scope, "", false)
			return
		}
		delete(p.refreshTokens, rt)
		p.issue(w, scope, "", true)

	case GrantDeviceCode:
		if form.Get("device_code") != TestDefaultDeviceCode {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "unknown device code")
			return
		}
		if len(p.deviceResponses) > 0 {
			code := p.deviceResponses[0]
			p.deviceResponses = p.deviceResponses[1:]
			p.writeError(w, http.StatusBadRequest, code, "")
			return
		}
		p.issue(w, scope, "", true)

	case GrantPassword:
		if p.username == "" || form.Get("username") != p.username || form.Get("password") != p.password {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "bad credentials")
			return
		}
		p.issue(w, scope, "", true)

	case GrantTokenExchange:
		subject := form.Get("subject_token")
		switch form.Get("subject_token_type") {
		case "":
			p.writeError(w, http.StatusBadRequest, "invalid_request", "missing subject_token_type")
			return
		case TokenTypeDeviceSecret:
			if !p.deviceSecrets[subject] {
				p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "unknown device secret")
				return
			}
		}
		if subject == "" {
			p.writeError(w, http.StatusBadRequest, "invalid_request", "missing subject_token")
			return
		}
		p.issue(w, scope, "", true, TokenTypeAccessToken)

	case GrantJWTBearer:
		if form.Get("assertion") == "" {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "missing assertion")
			return
		}
		p.issue(w, scope, "", false)

	case GrantInteractionCode:
		if p.interactionCode == "" || form.Get("interaction_code") != p.interactionCode {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "unexpected interaction code")
			return
		}
		if form.Get("code_verifier") == "" {
			p.writeError(w, http.StatusBadRequest, ErrCodeInvalidGrant, "missing code_verifier")
			return
		}
		p.issue(w, scope, p.nonce, true)

	default:
		p.writeError(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
	}
}

// issue writes a token response. p.mu must be held.
func (p *TestProvider) issue(w http.ResponseWriter, scope, nonce string, withRefresh bool, issuedTokenType ...string) {
	p.issueWithClaims(w, scope, nonce, withRefresh, nil, issuedTokenType...)
}

// issueWithClaims is issue with extra id_token claims, which custom claims
// override. p.mu must be held.
func (p *TestProvider) issueWithClaims(w http.ResponseWriter, scope, nonce string, withRefresh bool, extra map[string]interface{}, issuedTokenType ...string) {
	id, err := NewID()
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	reply := map[string]interface{}{
		"token_type":   "Bearer",
		"access_token": "at_" + id,
		"expires_in":   p.expiresIn,
	}
	p.accessTokens["at_"+id] = true
	if scope != "" {
		reply["scope"] = scope
	}
	if withRefresh {
		reply["refresh_token"] = "rt_" + id
		p.refreshTokens["rt_"+id] = true
	}
	if p.issueDeviceSecret {
		reply["device_secret"] = "ds_" + id
		p.deviceSecrets["ds_"+id] = true
	}
	if len(issuedTokenType) > 0 {
		reply["issued_token_type"] = issuedTokenType[0]
	}
	if !p.omitIDToken {
		now := time.Now()
		claims := map[string]interface{}{
			"iss":     p.Addr(),
			"sub":     p.subject,
			"aud":     p.clientID,
			"iat":     now.Unix(),
			"exp":     now.Add(time.Duration(p.expiresIn) * time.Second).Unix(),
			"at_hash": TestAccessTokenHash("at_" + id),
		}
		if nonce != "" {
			claims["nonce"] = nonce
		}
		for k, v := range extra {
			claims[k] = v
		}
		for k, v := range p.customClaims {
			claims[k] = v
		}
		raw, err := signJWT(p.signingKey, jwt.RS256, claims, p.keyID)
		if err != nil {
			p.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		reply["id_token"] = raw
	}
	p.writeJSON(w, reply)
}

func (p *TestProvider) handleRevoke(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checkClient(w, req) {
		return
	}
	hint := req.PostForm.Get("token_type_hint")
	if status, ok := p.revokeFailures[hint]; ok {
		p.writeError(w, status, "invalid_request", "unable to revoke "+hint)
		return
	}
	token := req.PostForm.Get("token")
	if token == "" {
		p.writeError(w, http.StatusBadRequest, "invalid_request", "missing token")
		return
	}
	delete(p.accessTokens, token)
	delete(p.refreshTokens, token)
	delete(p.deviceSecrets, token)
	w.WriteHeader(http.StatusOK)
}

func (p *TestProvider) handleIntrospect(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checkClient(w, req) {
		return
	}
	token := req.PostForm.Get("token")
	if !p.accessTokens[token] && !p.refreshTokens[token] && !p.deviceSecrets[token] {
		p.writeJSON(w, map[string]interface{}{"active": false})
		return
	}
	p.writeJSON(w, map[string]interface{}{
		"active":     true,
		"client_id":  p.clientID,
		"sub":        p.subject,
		"username":   p.subject,
		"token_type": "Bearer",
		"scope":      "openid",
		"exp":        time.Now().Add(time.Duration(p.expiresIn) * time.Second).Unix(),
	})
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !p.accessTokens[token] {
		p.writeError(w, http.StatusUnauthorized, "invalid_token", "unknown access token")
		return
	}
	reply := map[string]interface{}{"sub": p.subject}
	for k, v := range p.userinfo {
		reply[k] = v
	}
	p.writeJSON(w, reply)
}

func (p *TestProvider) handleDeviceAuthorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.checkClient(w, req) {
		return
	}
	verify := p.Addr() + "/activate"
	p.writeJSON(w, map[string]interface{}{
		"device_code":               TestDefaultDeviceCode,
		"user_code":                 TestDefaultUserCode,
		"verification_uri":          verify,
		"verification_uri_complete": verify + "?user_code=" + url.QueryEscape(TestDefaultUserCode),
		"expires_in":                600,
		"interval":                  p.deviceInterval,
	})
}

func (p *TestProvider) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	if qv.Get("id_token_hint") == "" {
		p.writeError(w, http.StatusBadRequest, "invalid_request", "missing id_token_hint")
		return
	}
	redirectURI := qv.Get("post_logout_redirect_uri")
	if redirectURI == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	params := url.Values{}
	if s := qv.Get("state"); s != "" {
		params.Set("state", s)
	}
	p.redirect(w, req, redirectURI, params)
}

// testProviderOptions is the set of available options.
type testProviderOptions struct {
	withPort int
}

func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort runs the TestProvider on a fixed port.
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
