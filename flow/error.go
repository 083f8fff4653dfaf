// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import "errors"

var (
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInvalidContext      = errors.New("invalid flow context")
	ErrInvalidState        = errors.New("state does not match")
	ErrMissingCode         = errors.New("authorization code is missing")
	ErrMissingRedirectURL  = errors.New("redirect url is not configured")
	ErrVerificationExpired = errors.New("device verification expired")
	ErrFlowReset           = errors.New("flow was reset")
)
