// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// noAuthenticator is the RelatesTo of a field or remediation which doesn't
// refer to an authenticator.
const noAuthenticator = -1

// Form is the ordered list of fields a remediation accepts.
type Form struct {
	Fields []*Field

	visibleOnce sync.Once
	hasVisible  bool
}

// Field is a value a remediation accepts. A field is a leaf with a value, a
// nested Form, or a choice between Options.
type Field struct {
	Name     string
	Label    string
	Type     string
	Visible  bool
	Mutable  bool
	Required bool
	Secret   bool

	// Form is set for fields which hold a nested object.
	Form *Form

	// Options are mutually exclusive choices. An option either has a
	// primitive Value or a Form.
	Options []*Field

	// RelatesTo is the index of the authenticator in the Response this
	// field is about, or -1.
	RelatesTo int

	Messages []Message

	// value is the server's default, replaced by SetValue.
	value    interface{}
	selected int

	visibleOnce sync.Once
	hasVisible  bool
}

func newField() *Field {
	return &Field{Visible: true, Mutable: true, RelatesTo: noAuthenticator, selected: -1}
}

// Value returns the field's value: the server's default unless replaced
// with SetValue.
func (f *Field) Value() interface{} { return f.value }

// SetValue sets the value sent for the field when Resolve isn't given one.
// It does nothing for immutable fields.
func (f *Field) SetValue(v interface{}) {
	if !f.Mutable {
		return
	}
	f.value = v
}

// SelectOption selects which of the field's Options is sent. It does nothing
// when opt isn't one of them.
func (f *Field) SelectOption(opt *Field) {
	for i, o := range f.Options {
		if o == opt {
			f.selected = i
			return
		}
	}
}

// SelectedOption returns the option chosen with SelectOption, or nil.
func (f *Field) SelectedOption() *Field {
	if f.selected < 0 || f.selected >= len(f.Options) {
		return nil
	}
	return f.Options[f.selected]
}

// HasVisibleFields reports whether the field itself, or anything nested in
// it, is shown to the user. It's computed once.
func (f *Field) HasVisibleFields() bool {
	f.visibleOnce.Do(func() {
		switch {
		case f.Form != nil:
			f.hasVisible = f.Visible || f.Form.HasVisibleFields()
		case len(f.Options) > 0:
			f.hasVisible = f.Visible
			for _, o := range f.Options {
				if o.HasVisibleFields() {
					f.hasVisible = true
				}
			}
		default:
			f.hasVisible = f.Visible
		}
	})
	return f.hasVisible
}

// HasVisibleFields reports whether any field of the form, at any depth, is
// shown to the user. It's computed once.
func (f *Form) HasVisibleFields() bool {
	if f == nil {
		return false
	}
	f.visibleOnce.Do(func() {
		for _, field := range f.Fields {
			if field.HasVisibleFields() {
				f.hasVisible = true
				return
			}
		}
	})
	return f.hasVisible
}

// Field returns the field with the given name. Nested fields are named with
// dots, such as "credentials.passcode".
func (f *Form) Field(name string) *Field {
	if f == nil {
		return nil
	}
	head, rest, nested := strings.Cut(name, ".")
	for _, field := range f.Fields {
		if field.Name != head {
			continue
		}
		if !nested {
			return field
		}
		if field.Form != nil {
			return field.Form.Field(rest)
		}
		if opt := field.SelectedOption(); opt != nil {
			return opt.Form.Field(rest)
		}
		return nil
	}
	return nil
}

// Param is a single name and value of a Payload. Value is a string, bool,
// number or nested Payload.
type Param struct {
	Name  string
	Value interface{}
}

// Payload is the resolved body of a remediation request, in the order the
// form declares its fields.
type Payload []Param

// Get returns the value of name.
func (p Payload) Get(name string) (interface{}, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// MarshalJSON encodes the payload as an object, keeping its order.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(param.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Resolve produces the payload for the form from params, whose keys are
// field names; nested forms take a map[string]interface{}. A field without a
// param is sent with its Value. Resolve fails with:
//   - ErrInvalidParameter for a param naming no field
//   - ErrParameterImmutable for a param which changes an immutable field
//   - ErrMissingRequiredParameter for a required field with no value
//
// The form isn't modified.
func (f *Form) Resolve(params map[string]interface{}) (Payload, error) {
	const op = "Form.Resolve"
	p, err := f.resolve("", params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (f *Form) resolve(prefix string, params map[string]interface{}) (Payload, error) {
	if f == nil {
		if len(params) > 0 {
			return nil, fmt.Errorf("%w: form has no fields", ErrInvalidParameter)
		}
		return Payload{}, nil
	}
	for name := range params {
		if f.Field(name) == nil || strings.Contains(name, ".") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidParameter, prefix+name)
		}
	}
	out := Payload{}
	for _, field := range f.Fields {
		supplied, ok := params[field.Name]
		v, include, err := field.resolve(prefix, supplied, ok)
		if err != nil {
			return nil, err
		}
		if include {
			out = append(out, Param{Name: field.Name, Value: v})
		}
	}
	return out, nil
}

func (f *Field) resolve(prefix string, supplied interface{}, ok bool) (interface{}, bool, error) {
	path := prefix + f.Name
	switch {
	case f.Form != nil:
		sub, err := subParams(path, supplied, ok)
		if err != nil {
			return nil, false, err
		}
		p, err := f.Form.resolve(path+".", sub)
		if err != nil {
			if !ok && !f.Required {
				// an optional object nobody filled in
				return nil, false, nil
			}
			return nil, false, err
		}
		if len(p) == 0 {
			if f.Required {
				return nil, false, fmt.Errorf("%w: %q", ErrMissingRequiredParameter, path)
			}
			return nil, false, nil
		}
		return p, true, nil

	case len(f.Options) > 0:
		opt, sub, err := f.chooseOption(path, supplied, ok)
		if err != nil {
			return nil, false, err
		}
		if opt == nil {
			if f.Required {
				return nil, false, fmt.Errorf("%w: %q", ErrMissingRequiredParameter, path)
			}
			return nil, false, nil
		}
		if opt.Form == nil {
			return opt.value, true, nil
		}
		p, err := opt.Form.resolve(path+".", sub)
		if err != nil {
			return nil, false, err
		}
		return p, true, nil

	default:
		v := f.value
		if ok {
			if !f.Mutable && !sameValue(supplied, f.value) {
				return nil, false, fmt.Errorf("%w: %q", ErrParameterImmutable, path)
			}
			v = supplied
		}
		if isEmpty(v) {
			if f.Required {
				return nil, false, fmt.Errorf("%w: %q", ErrMissingRequiredParameter, path)
			}
			return nil, false, nil
		}
		return v, true, nil
	}
}

// chooseOption returns the option selected by supplied, or by SelectOption
// when nothing was supplied, and the params for its form. An option is
// selected by identity, by its primitive value, by its label, or by a map
// its form resolves.
func (f *Field) chooseOption(path string, supplied interface{}, ok bool) (*Field, map[string]interface{}, error) {
	if !ok {
		return f.SelectedOption(), nil, nil
	}
	switch v := supplied.(type) {
	case *Field:
		for _, o := range f.Options {
			if o == v {
				return o, nil, nil
			}
		}
	case map[string]interface{}:
		var firstErr error
		for _, o := range f.Options {
			if o.Form == nil {
				continue
			}
			_, err := o.Form.resolve(path+".", v)
			if err == nil {
				return o, v, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		if firstErr != nil {
			return nil, nil, firstErr
		}
	default:
		for _, o := range f.Options {
			if o.Form == nil && sameValue(v, o.value) {
				return o, nil, nil
			}
		}
		for _, o := range f.Options {
			if s, isString := v.(string); isString && s == o.Label {
				return o, nil, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: no option of %q matches", ErrInvalidParameter, path)
}

func subParams(path string, supplied interface{}, ok bool) (map[string]interface{}, error) {
	if !ok || supplied == nil {
		return nil, nil
	}
	m, isMap := supplied.(map[string]interface{})
	if !isMap {
		return nil, fmt.Errorf("%w: %q takes an object", ErrInvalidParameter, path)
	}
	return m, nil
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// sameValue compares values which may have been decoded from JSON, where
// numbers are json.Number.
func sameValue(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
