// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// ION media types.
const (
	ionContentType = "application/ion+json; okta-version=1.0.0"
	ionAccept      = "application/ion+json; okta-version=1.0.0"
)

type ionCollection[T any] struct {
	Type  string `json:"type"`
	Value []T    `json:"value"`
}

type ionObject[T any] struct {
	Type  string `json:"type"`
	Value T      `json:"value"`
}

type ionDocument struct {
	Version                        string                           `json:"version"`
	StateHandle                    string                           `json:"stateHandle"`
	ExpiresAt                      string                           `json:"expiresAt"`
	Intent                         string                           `json:"intent"`
	Remediation                    *ionCollection[ionRemediation]   `json:"remediation"`
	Messages                       *ionCollection[ionMessage]       `json:"messages"`
	Authenticators                 *ionCollection[ionAuthenticator] `json:"authenticators"`
	AuthenticatorEnrollments       *ionCollection[ionAuthenticator] `json:"authenticatorEnrollments"`
	CurrentAuthenticator           *ionObject[ionAuthenticator]     `json:"currentAuthenticator"`
	CurrentAuthenticatorEnrollment *ionObject[ionAuthenticator]     `json:"currentAuthenticatorEnrollment"`
	RecoveryAuthenticator          *ionObject[ionAuthenticator]     `json:"recoveryAuthenticator"`
	User                           *ionObject[ionUser]              `json:"user"`
	App                            *ionObject[ionApp]               `json:"app"`
	Cancel                         *ionRemediation                  `json:"cancel"`
	SuccessWithInteractionCode     *ionRemediation                  `json:"successWithInteractionCode"`
}

type ionRemediation struct {
	Rel       []string     `json:"rel"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Href      string       `json:"href"`
	Method    string       `json:"method"`
	Accepts   string       `json:"accepts"`
	Produces  string       `json:"produces"`
	Refresh   json.Number  `json:"refresh"`
	RelatesTo ionRelatesTo `json:"relatesTo"`
	Value     []ionField   `json:"value"`
	IDP       *ionIDP      `json:"idp"`
}

type ionIDP struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ionForm struct {
	Value []ionField `json:"value"`
}

type ionField struct {
	Name      string                     `json:"name"`
	Label     string                     `json:"label"`
	Type      string                     `json:"type"`
	Value     json.RawMessage            `json:"value"`
	Visible   *bool                      `json:"visible"`
	Mutable   *bool                      `json:"mutable"`
	Required  bool                       `json:"required"`
	Secret    bool                       `json:"secret"`
	Form      *ionForm                   `json:"form"`
	Options   []ionField                 `json:"options"`
	RelatesTo ionRelatesTo               `json:"relatesTo"`
	Messages  *ionCollection[ionMessage] `json:"messages"`
}

type ionMessage struct {
	Message string `json:"message"`
	Class   string `json:"class"`
	I18n    struct {
		Key string `json:"key"`
	} `json:"i18n"`
}

type ionAuthenticator struct {
	ID          string                 `json:"id"`
	Key         string                 `json:"key"`
	Type        string                 `json:"type"`
	DisplayName string                 `json:"displayName"`
	Methods     []ionMethod            `json:"methods"`
	Profile     map[string]interface{} `json:"profile"`
	Send        *ionRemediation        `json:"send"`
	Resend      *ionRemediation        `json:"resend"`
	Poll        *ionRemediation        `json:"poll"`
	Recover     *ionRemediation        `json:"recover"`
}

type ionMethod struct {
	Type string `json:"type"`
}

type ionUser struct {
	ID         string                 `json:"id"`
	Identifier string                 `json:"identifier"`
	Profile    map[string]interface{} `json:"profile"`
}

type ionApp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ionRelatesTo is a JSON path, or a list of them.
type ionRelatesTo []string

func (r *ionRelatesTo) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = ionRelatesTo{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

// ParseResponse parses an ION document.
func ParseResponse(data []byte) (*Response, error) {
	const op = "idx.ParseResponse"
	var doc ionDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidResponse, err)
	}
	p := &ionParser{refs: map[string]int{}, byID: map[string]int{}}
	resp, err := p.response(&doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return resp, nil
}

// ionParser builds the authenticator arena first, so relatesTo paths can be
// turned into indexes.
type ionParser struct {
	resp *Response
	refs map[string]int
	byID map[string]int
}

func (p *ionParser) response(doc *ionDocument) (*Response, error) {
	p.resp = &Response{
		StateHandle: doc.StateHandle,
		Intent:      doc.Intent,
	}
	if doc.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, doc.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("%w: expiresAt: %w", ErrInvalidResponse, err)
		}
		p.resp.ExpiresAt = t
	}

	// pending capabilities are parsed once every authenticator has an index.
	type pending struct {
		index int
		raw   ionAuthenticator
	}
	var caps []pending
	add := func(path string, a ionAuthenticator, state AuthenticatorState) {
		i, ok := p.byID[a.ID]
		if !ok || a.ID == "" {
			i = len(p.resp.Authenticators)
			auth := &Authenticator{
				ID:          a.ID,
				Key:         a.Key,
				Type:        a.Type,
				DisplayName: a.DisplayName,
				State:       state,
				Profile:     a.Profile,
			}
			for _, m := range a.Methods {
				auth.Methods = append(auth.Methods, m.Type)
			}
			p.resp.Authenticators = append(p.resp.Authenticators, auth)
			if a.ID != "" {
				p.byID[a.ID] = i
			}
		} else if state != AuthenticatorNormal {
			p.resp.Authenticators[i].State = state
		}
		p.refs[path] = i
		caps = append(caps, pending{index: i, raw: a})
	}
	if doc.Authenticators != nil {
		for i, a := range doc.Authenticators.Value {
			add(fmt.Sprintf("$.authenticators.value[%d]", i), a, AuthenticatorNormal)
		}
	}
	if doc.AuthenticatorEnrollments != nil {
		for i, a := range doc.AuthenticatorEnrollments.Value {
			add(fmt.Sprintf("$.authenticatorEnrollments.value[%d]", i), a, AuthenticatorEnrolled)
		}
	}
	if doc.CurrentAuthenticator != nil {
		add("$.currentAuthenticator", doc.CurrentAuthenticator.Value, AuthenticatorEnrolling)
	}
	if doc.CurrentAuthenticatorEnrollment != nil {
		add("$.currentAuthenticatorEnrollment", doc.CurrentAuthenticatorEnrollment.Value, AuthenticatorAuthenticating)
	}
	if doc.RecoveryAuthenticator != nil {
		add("$.recoveryAuthenticator", doc.RecoveryAuthenticator.Value, AuthenticatorRecovery)
	}

	for _, c := range caps {
		auth := p.resp.Authenticators[c.index]
		for _, capability := range []struct {
			raw *ionRemediation
			dst **Remediation
		}{
			{c.raw.Send, &auth.Send},
			{c.raw.Resend, &auth.Resend},
			{c.raw.Poll, &auth.Poll},
			{c.raw.Recover, &auth.Recover},
		} {
			if capability.raw == nil {
				continue
			}
			rem, err := p.remediation(capability.raw)
			if err != nil {
				return nil, err
			}
			if len(rem.RelatesTo) == 0 {
				rem.RelatesTo = []int{c.index}
			}
			*capability.dst = rem
		}
	}

	if doc.Remediation != nil {
		for i := range doc.Remediation.Value {
			rem, err := p.remediation(&doc.Remediation.Value[i])
			if err != nil {
				return nil, err
			}
			p.resp.Remediations = append(p.resp.Remediations, rem)
		}
	}
	var err error
	if doc.Cancel != nil {
		if p.resp.cancel, err = p.remediation(doc.Cancel); err != nil {
			return nil, err
		}
	}
	if doc.SuccessWithInteractionCode != nil {
		if p.resp.success, err = p.remediation(doc.SuccessWithInteractionCode); err != nil {
			return nil, err
		}
	}
	if doc.Messages != nil {
		p.resp.Messages = messages(doc.Messages.Value)
	}
	if doc.User != nil {
		p.resp.User = &User{ID: doc.User.Value.ID, Username: doc.User.Value.Identifier, Profile: doc.User.Value.Profile}
	}
	if doc.App != nil {
		p.resp.App = &App{ID: doc.App.Value.ID, Name: doc.App.Value.Name, Label: doc.App.Value.Label}
	}
	return p.resp, nil
}

func (p *ionParser) remediation(raw *ionRemediation) (*Remediation, error) {
	rem := &Remediation{
		Type:     ParseRemediationType(raw.Name),
		Name:     raw.Name,
		Href:     raw.Href,
		Method:   raw.Method,
		Accepts:  raw.Accepts,
		Produces: raw.Produces,
		Rel:      raw.Rel,
	}
	for _, path := range raw.RelatesTo {
		if i, ok := p.refs[path]; ok {
			rem.RelatesTo = append(rem.RelatesTo, i)
		}
	}
	if raw.Refresh != "" {
		ms, err := raw.Refresh.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: refresh of %q: %w", ErrInvalidResponse, raw.Name, err)
		}
		rem.Poll = &Pollable{Interval: time.Duration(ms) * time.Millisecond}
	}
	if rem.Type == RedirectIDP {
		u, err := url.Parse(raw.Href)
		if err != nil {
			return nil, fmt.Errorf("%w: idp redirect of %q: %w", ErrInvalidResponse, raw.Name, err)
		}
		rem.IDP = &SocialIDP{Service: raw.Type, RedirectURL: u}
		if raw.IDP != nil {
			rem.IDP.ID, rem.IDP.Name = raw.IDP.ID, raw.IDP.Name
		}
	}
	form, err := p.form(raw.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: form of %q: %w", ErrInvalidResponse, raw.Name, err)
	}
	rem.Form = form
	return rem, nil
}

func (p *ionParser) form(raw []ionField) (*Form, error) {
	f := &Form{}
	for i := range raw {
		field, err := p.field(&raw[i])
		if err != nil {
			return nil, err
		}
		f.Fields = append(f.Fields, field)
	}
	return f, nil
}

func (p *ionParser) field(raw *ionField) (*Field, error) {
	f := newField()
	f.Name = raw.Name
	f.Label = raw.Label
	f.Type = raw.Type
	f.Required = raw.Required
	f.Secret = raw.Secret
	if raw.Visible != nil {
		f.Visible = *raw.Visible
	}
	if raw.Mutable != nil {
		f.Mutable = *raw.Mutable
	}
	if len(raw.RelatesTo) > 0 {
		if i, ok := p.refs[raw.RelatesTo[0]]; ok {
			f.RelatesTo = i
		}
	}
	if raw.Messages != nil {
		f.Messages = messages(raw.Messages.Value)
	}
	if raw.Form != nil {
		form, err := p.form(raw.Form.Value)
		if err != nil {
			return nil, err
		}
		f.Form = form
	}
	if len(raw.Value) > 0 {
		if err := p.fieldValue(f, raw.Value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", raw.Name, err)
		}
	}
	for i := range raw.Options {
		opt, err := p.field(&raw.Options[i])
		if err != nil {
			return nil, err
		}
		f.Options = append(f.Options, opt)
	}
	return f, nil
}

// fieldValue decodes a field's value, which is either a primitive or an
// object holding a nested form.
func (p *ionParser) fieldValue(f *Field, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var nested struct {
			Form      *ionForm     `json:"form"`
			RelatesTo ionRelatesTo `json:"relatesTo"`
		}
		if err := json.Unmarshal(trimmed, &nested); err != nil {
			return err
		}
		if nested.Form != nil {
			form, err := p.form(nested.Form.Value)
			if err != nil {
				return err
			}
			f.Form = form
		}
		if len(nested.RelatesTo) > 0 {
			if i, ok := p.refs[nested.RelatesTo[0]]; ok {
				f.RelatesTo = i
			}
		}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	f.value = v
	return nil
}

func messages(raw []ionMessage) []Message {
	out := make([]Message, 0, len(raw))
	for _, m := range raw {
		out = append(out, Message{Type: m.Class, Text: m.Message, LocalizationKey: m.I18n.Key})
	}
	return out
}
