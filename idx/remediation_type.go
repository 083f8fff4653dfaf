// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package idx

// RemediationType identifies a remediation by its name. Names this package
// doesn't know are Unknown; the remediation's Name still holds the server's
// value.
type RemediationType int

const (
	Unknown RemediationType = iota
	Identify
	IdentifyRecovery
	SelectIdentify
	SelectEnrollProfile
	Cancel
	SendChallenge
	ResendChallenge
	SelectAuthenticatorAuthenticate
	SelectAuthenticatorEnroll
	SelectAuthenticatorUnlockAccount
	SelectEnrollmentChannel
	AuthenticatorVerificationData
	AuthenticatorEnrollmentData
	EnrollmentChannelData
	ChallengeAuthenticator
	ChallengePoll
	EnrollPoll
	Recover
	EnrollAuthenticator
	ReenrollAuthenticator
	ReenrollAuthenticatorWarning
	ResetAuthenticator
	EnrollProfile
	UnlockAccount
	DeviceChallengePoll
	DeviceAssurance
	LaunchAuthenticator
	RedirectIDP
	Consent
	Skip
	Issue
)

var remediationNames = map[RemediationType]string{
	Identify:                         "identify",
	IdentifyRecovery:                 "identify-recovery",
	SelectIdentify:                   "select-identify",
	SelectEnrollProfile:              "select-enroll-profile",
	Cancel:                           "cancel",
	SendChallenge:                    "send",
	ResendChallenge:                  "resend",
	SelectAuthenticatorAuthenticate:  "select-authenticator-authenticate",
	SelectAuthenticatorEnroll:        "select-authenticator-enroll",
	SelectAuthenticatorUnlockAccount: "select-authenticator-unlock-account",
	SelectEnrollmentChannel:          "select-enrollment-channel",
	AuthenticatorVerificationData:    "authenticator-verification-data",
	AuthenticatorEnrollmentData:      "authenticator-enrollment-data",
	EnrollmentChannelData:            "enrollment-channel-data",
	ChallengeAuthenticator:           "challenge-authenticator",
	ChallengePoll:                    "challenge-poll",
	EnrollPoll:                       "enroll-poll",
	Recover:                          "recover",
	EnrollAuthenticator:              "enroll-authenticator",
	ReenrollAuthenticator:            "reenroll-authenticator",
	ReenrollAuthenticatorWarning:     "reenroll-authenticator-warning",
	ResetAuthenticator:               "reset-authenticator",
	EnrollProfile:                    "enroll-profile",
	UnlockAccount:                    "unlock-account",
	DeviceChallengePoll:              "device-challenge-poll",
	DeviceAssurance:                  "device-assurance",
	LaunchAuthenticator:              "launch-authenticator",
	RedirectIDP:                      "redirect-idp",
	Consent:                          "consent",
	Skip:                             "skip",
	Issue:                            "issue",
}

var remediationTypes = func() map[string]RemediationType {
	m := make(map[string]RemediationType, len(remediationNames))
	for t, n := range remediationNames {
		m[n] = t
	}
	return m
}()

// ParseRemediationType returns the type named name, or Unknown.
func ParseRemediationType(name string) RemediationType {
	return remediationTypes[name]
}

// String returns the remediation name, or "unknown".
func (t RemediationType) String() string {
	if n, ok := remediationNames[t]; ok {
		return n
	}
	return "unknown"
}
