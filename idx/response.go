// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import (
	"net/url"
	"time"
)

// Response is a parsed identity engine response. The Response owns every
// Authenticator; fields and remediations refer to them by index.
type Response struct {
	StateHandle    string
	ExpiresAt      time.Time
	Intent         string
	Remediations   []*Remediation
	Authenticators []*Authenticator
	Messages       []Message
	App            *App
	User           *User

	cancel  *Remediation
	success *Remediation
}

// IsLoginSuccessful reports whether the server issued an interaction code,
// which ExchangeCode exchanges for a token.
func (r *Response) IsLoginSuccessful() bool { return r.success != nil }

// SuccessRemediation returns the remediation carrying the interaction code,
// or nil.
func (r *Response) SuccessRemediation() *Remediation { return r.success }

// CanCancel reports whether the server offered a way to cancel the
// interaction.
func (r *Response) CanCancel() bool { return r.cancel != nil }

// CancelRemediation returns the cancel remediation, or nil.
func (r *Response) CancelRemediation() *Remediation { return r.cancel }

// Remediation returns the first remediation of type t, or nil.
func (r *Response) Remediation(t RemediationType) *Remediation {
	for _, rem := range r.Remediations {
		if rem.Type == t {
			return rem
		}
	}
	return nil
}

// RemediationNamed returns the first remediation named name, or nil.
func (r *Response) RemediationNamed(name string) *Remediation {
	for _, rem := range r.Remediations {
		if rem.Name == name {
			return rem
		}
	}
	return nil
}

// Authenticator returns the authenticator at index i, or nil.
func (r *Response) Authenticator(i int) *Authenticator {
	if i < 0 || i >= len(r.Authenticators) {
		return nil
	}
	return r.Authenticators[i]
}

// RelatedAuthenticators returns the authenticators rem relates to.
func (r *Response) RelatedAuthenticators(rem *Remediation) []*Authenticator {
	var out []*Authenticator
	for _, i := range rem.RelatesTo {
		if a := r.Authenticator(i); a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Remediation is a step the server offers.
type Remediation struct {
	Type     RemediationType
	Name     string
	Href     string
	Method   string
	Accepts  string
	Produces string
	Rel      []string
	Form     *Form

	// RelatesTo holds indexes of the Response's Authenticators.
	RelatesTo []int

	// Poll is set for remediations which are repeated until the user acts
	// elsewhere.
	Poll *Pollable

	// IDP is set for redirect-idp remediations.
	IDP *SocialIDP
}

// Pollable is a remediation to repeat every Interval.
type Pollable struct {
	Interval time.Duration
}

// SocialIDP is an external identity provider the user can be redirected
// to. RedirectURL is where to send the user's browser.
type SocialIDP struct {
	ID          string
	Name        string
	Service     string
	RedirectURL *url.URL
}

// AuthenticatorState tells which collection of the response an
// authenticator came from.
type AuthenticatorState int

const (
	AuthenticatorNormal AuthenticatorState = iota
	AuthenticatorEnrolled
	AuthenticatorAuthenticating
	AuthenticatorEnrolling
	AuthenticatorRecovery
)

// Authenticator is a factor the user authenticates or enrolls with. Send,
// Resend, Poll and Recover are set when the authenticator offers them.
type Authenticator struct {
	ID          string
	Key         string
	Type        string
	DisplayName string
	State       AuthenticatorState
	Methods     []string
	Profile     map[string]interface{}

	Send    *Remediation
	Resend  *Remediation
	Poll    *Remediation
	Recover *Remediation
}

// Sendable reports whether a code can be sent, for example by SMS.
func (a *Authenticator) Sendable() bool { return a.Send != nil }

// Resendable reports whether a code can be sent again.
func (a *Authenticator) Resendable() bool { return a.Resend != nil }

// Pollable reports whether completion is awaited out of band.
func (a *Authenticator) Pollable() bool { return a.Poll != nil }

// Recoverable reports whether the authenticator can be recovered, such as
// a forgotten password.
func (a *Authenticator) Recoverable() bool { return a.Recover != nil }

// Message is a message for the user, attached to a response or a field.
type Message struct {
	Type            string
	Text            string
	LocalizationKey string
}

// App is the application the user is signing in to.
type App struct {
	ID    string
	Name  string
	Label string
}

// User is the user being authenticated, once identified.
type User struct {
	ID       string
	Username string
	Profile  map[string]interface{}
}
