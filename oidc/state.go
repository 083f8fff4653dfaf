// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Prompt is an oidc prompt value.
type Prompt string

const (
	// Defined the Prompt values that are supported by OIDC.
	//
	// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// DefaultFlowExpiry is how long a FlowContext stays usable by default.
const DefaultFlowExpiry = 10 * time.Minute

// FlowContext carries the values a flow creates when it starts and checks
// when it resumes: the state correlating the redirect with the request, the
// nonce bound into the id_token and the PKCE verifier, plus optional request
// parameters. A FlowContext is created by a flow's start and discarded by
// reset, cancel or completion.
type FlowContext struct {
	// State is the opaque value used to maintain state between the request
	// and the callback.
	State string

	// Nonce associates a client session with an id_token.
	Nonce string

	// PKCE is the verifier pair, or nil when PKCE isn't used.
	PKCE *CodeVerifier

	// MaxAge, when positive, is sent as max_age and enforced on the auth_time
	// claim.
	MaxAge time.Duration

	ACRValues            []string
	Prompts              []Prompt
	LoginHint            string
	UILocales            []language.Tag
	AdditionalParameters map[string]string

	// Expiration is when the context stops being accepted on resume.
	Expiration time.Time
}

// NewFlowContext creates a FlowContext, generating the state and nonce when
// not supplied and a PKCE verifier unless disabled.
//
// Supported options:
//   - WithState
//   - WithNonce
//   - WithPKCE
//   - WithoutPKCE
//   - WithMaxAge
//   - WithACRValues
//   - WithPrompts
//   - WithLoginHint
//   - WithUILocales
//   - WithAdditionalParameters
//   - WithExpiry
func NewFlowContext(opt ...Option) (*FlowContext, error) {
	const op = "NewFlowContext"
	opts := getFlowContextOpts(opt...)
	fc := &FlowContext{
		State:                opts.withState,
		Nonce:                opts.withNonce,
		PKCE:                 opts.withPKCE,
		MaxAge:               opts.withMaxAge,
		ACRValues:            opts.withACRValues,
		Prompts:              opts.withPrompts,
		LoginHint:            opts.withLoginHint,
		UILocales:            opts.withUILocales,
		AdditionalParameters: opts.withAdditionalParameters,
		Expiration:           opts.withNow().Add(opts.withExpiry),
	}
	var err error
	if fc.State == "" {
		if fc.State, err = NewID(WithPrefix("st")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
		}
	}
	if fc.Nonce == "" {
		if fc.Nonce, err = NewID(WithPrefix("n")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
		}
	}
	if fc.State == fc.Nonce {
		return nil, fmt.Errorf("%s: state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	if fc.PKCE == nil && !opts.withoutPKCE {
		if fc.PKCE, err = NewCodeVerifier(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if opts.withoutPKCE {
		fc.PKCE = nil
	}
	return fc, nil
}

// IsExpired returns true if the context has expired.
func (fc *FlowContext) IsExpired() bool {
	if fc.Expiration.IsZero() {
		return false
	}
	return time.Now().After(fc.Expiration)
}

type flowContextOptions struct {
	withState                string
	withNonce                string
	withPKCE                 *CodeVerifier
	withoutPKCE              bool
	withMaxAge               time.Duration
	withACRValues            []string
	withPrompts              []Prompt
	withLoginHint            string
	withUILocales            []language.Tag
	withAdditionalParameters map[string]string
	withExpiry               time.Duration
	withNow                  func() time.Time
}

func flowContextDefaults() flowContextOptions {
	return flowContextOptions{
		withExpiry: DefaultFlowExpiry,
		withNow:    time.Now,
	}
}

func getFlowContextOpts(opt ...Option) flowContextOptions {
	opts := flowContextDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithState provides the state value instead of generating one.
func WithState(state string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withState = state
		}
	}
}

// WithNonce provides the nonce value instead of generating one.
func WithNonce(nonce string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withNonce = nonce
		}
	}
}

// WithPKCE provides the PKCE verifier instead of generating one.
func WithPKCE(v *CodeVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withPKCE = v
		}
	}
}

// WithoutPKCE disables PKCE.
func WithoutPKCE() Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withoutPKCE = true
		}
	}
}

// WithMaxAge requests a maximum authentication age.
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withMaxAge = d
		}
	}
}

// WithACRValues requests authentication context class references.
func WithACRValues(acr ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withACRValues = acr
		}
	}
}

// WithPrompts sets the prompt parameter.
func WithPrompts(p ...Prompt) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withPrompts = p
		}
	}
}

// WithLoginHint sets the login_hint parameter.
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withLoginHint = hint
		}
	}
}

// WithUILocales sets the ui_locales parameter.
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithExpiry sets how long a FlowContext is accepted.
func WithExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowContextOptions); ok {
			o.withExpiry = d
		}
	}
}

// WithNow provides a time source; it's used by FlowContexts and clients.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowContextOptions:
			v.withNow = now
		case *clientOptions:
			v.withNow = now
		}
	}
}

// WithAdditionalParameters adds parameters to requests. On a Config they're
// sent with every authorization and token request; on a FlowContext only with
// that flow's requests.
func WithAdditionalParameters(params map[string]string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowContextOptions:
			v.withAdditionalParameters = params
		case *configOptions:
			v.withAdditionalParameters = params
		}
	}
}
