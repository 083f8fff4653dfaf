// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
flow is a package that drives OAuth2 and OIDC authentication flows on top of
an oidc.Client.

Every flow is a small state machine: a Start call moves it from idle to
authenticating, and a terminal result (a token or an error) moves it back.
Flows which need a further step after Start (AuthorizationCodeFlow,
DeviceAuthorizationFlow, SessionTokenFlow, LogoutFlow) keep an
oidc.FlowContext until they complete or are Reset.

Listeners registered with WithListener are told when a flow starts, finishes
or fails. Notifications fire only when IsAuthenticating actually changes.
Calling Start while authenticating resets the flow and starts over. Reset is
safe to call at any time; a call which was in flight when the flow was reset
returns ErrFlowReset and changes nothing.

Example of an authorization code flow:

	c, _ := oidc.NewClient(config)
	f := flow.NewAuthorizationCodeFlow(c)
	u, _ := f.Start(ctx)
	// send the user to u, and receive the redirect
	t, _ := f.Resume(ctx, redirect)
*/
package flow
