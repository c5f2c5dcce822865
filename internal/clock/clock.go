// Package clock abstracts the wall clock so expiry and code windows can be
// driven deterministically in tests.
package clock

import "time"

// Clocker returns the current time.
type Clocker interface {
	Now() time.Time
}

// TimeClocker is the production Clocker backed by time.Now.
type TimeClocker struct{}

func New() *TimeClocker {
	return &TimeClocker{}
}

func (*TimeClocker) Now() time.Time {
	return time.Now()
}
