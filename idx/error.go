// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

import "errors"

var (
	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrParameterImmutable       = errors.New("parameter is immutable")
	ErrMissingRequiredParameter = errors.New("missing required parameter")
	ErrMissingRemediation       = errors.New("missing remediation")
	ErrInvalidContext           = errors.New("invalid interaction context")
	ErrInvalidRedirect          = errors.New("invalid redirect")
	ErrPlatformUnsupported      = errors.New("pkce is required")
	ErrInvalidResponse          = errors.New("invalid ion response")
)
