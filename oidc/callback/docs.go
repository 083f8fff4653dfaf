// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package callback serves the redirect that ends a browser sign in.

AuthCode exchanges the code with an oidc.Client, looking up the flow's
oidc.FlowContext by the response's state. Resume hands the whole redirect URL
to a flow which keeps its own context, such as flow.AuthorizationCodeFlow.
Loopback runs either on a local address for native and command line clients.

The page shown in the browser comes from a SuccessResponseFunc and an
ErrorResponseFunc. TextSuccess, TextError and JSONError cover the common
cases.
*/
package callback
