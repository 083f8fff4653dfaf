// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

// ClientListener is notified around token refreshes. DidRefresh is always
// called after WillRefresh; replacement is nil when the refresh failed.
type ClientListener interface {
	WillRefresh(token *Token)
	DidRefresh(token *Token, replacement *Token)
}

// EventType identifies an Event.
type EventType string

const (
	EventTokenRefreshed     EventType = "token-refreshed"
	EventTokenRefreshFailed EventType = "token-refresh-failed"
)

// Event is broadcast to the handlers subscribed to a Client.
type Event struct {
	Type EventType
	// Token is the token the event is about; for a refresh, the token which
	// was refreshed.
	Token *Token
	// Replacement is the refreshed token.
	Replacement *Token
	// Err is the failure of a failed refresh.
	Err error
}

// EventHandler receives events.
type EventHandler func(Event)

type subscription struct {
	handler EventHandler
}
