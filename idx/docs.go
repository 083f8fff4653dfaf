// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
idx is a package that drives the interaction code flow of an identity
engine, where the server decides which steps (remediations) a user must
complete before a token is issued.

InteractionCodeFlow.Start obtains an interaction handle and returns the first
Response. Each Response offers Remediations; the caller fills in the fields
of a remediation's Form and calls InteractionCodeFlow.Proceed, which returns
the next Response. When Response.IsLoginSuccessful reports true,
InteractionCodeFlow.ExchangeCode exchanges the interaction code for a token.

Responses are parsed from the server's ION documents into an arena: the
Response owns every Authenticator, and fields and remediations refer to
authenticators by index.

Form.Resolve turns a Form and caller supplied values into the payload which
is sent. It rejects values for unknown or immutable fields and reports
missing required values, and it never modifies the Form.
*/
package idx
