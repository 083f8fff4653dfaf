// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package id generates the random identifiers used as OAuth2 state values,
// OIDC nonces and token identities.
package id

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultLen is the number of random characters in a generated id.
const DefaultLen = 20

const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ErrInvalidLength is returned when a requested id length is not positive.
var ErrInvalidLength = errors.New("invalid id length")

// New generates an id of DefaultLen random alphanumeric characters with an
// optional prefix, separated from the random part by an underscore.
func New(optionalPrefix string) (string, error) {
	return NewWithLen(optionalPrefix, DefaultLen)
}

// NewWithLen is New with an explicit number of random characters.
func NewWithLen(optionalPrefix string, n int) (string, error) {
	const op = "id.NewWithLen"
	if n <= 0 {
		return "", fmt.Errorf("%s: %w: %d", op, ErrInvalidLength, n)
	}
	out := make([]byte, 0, n)
	// reject bytes >= 248 so every charset index is equally likely
	const limit = 256 - (256 % len(charset))
	for len(out) < n {
		buf, err := uuid.GenerateRandomBytes(n)
		if err != nil {
			return "", fmt.Errorf("%s: unable to generate id: %w", op, err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == n {
				break
			}
		}
	}
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, out), nil
	}
	return string(out), nil
}

// UUID returns a random RFC 4122 formatted identifier.
func UUID() (string, error) {
	const op = "id.UUID"
	u, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate uuid: %w", op, err)
	}
	return u, nil
}
