// Package otp derives per-request secrets, turns them into time-windowed
// numeric codes, and seals codes for storage at rest.
//
// The request timestamp is folded into the secret before the secret is fed to
// a 120-second TOTP, so two requests in the same window still receive
// different codes.
package otp
