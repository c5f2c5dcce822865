package service

import (
	"errors"
	"fmt"
)

// Verification outcomes and failures. Each maps to its own client-facing
// message, so callers must classify with errors.Is rather than collapse them.
var (
	ErrNotRegistered  = errors.New("phone number is not registered")
	ErrNoPendingOTP   = errors.New("no pending OTP")
	ErrInvalidFormat  = errors.New("OTP has an invalid format")
	ErrExpired        = errors.New("OTP expired")
	ErrMismatch       = errors.New("OTP does not match")
	ErrCrypto         = errors.New("OTP cipher failure")
	ErrDeliveryFailed = errors.New("OTP delivery failed")
)

// ErrUserNotFound is the ErrNoPendingOTP variant for a user removed while
// its code was being verified.
var ErrUserNotFound = fmt.Errorf("%w: user not found", ErrNoPendingOTP)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
