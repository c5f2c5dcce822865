package otp

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// CodeLength is the number of digits in every generated code.
const CodeLength = 6

var ErrEmptySalt = errors.New("otp: secret salt is empty")

// Generator issues six-digit codes for a phone number.
type Generator struct {
	salt   string
	period uint
}

// NewGenerator builds a Generator. period is truncated to whole seconds.
func NewGenerator(salt string, period time.Duration) (*Generator, error) {
	if salt == "" {
		return nil, ErrEmptySalt
	}

	seconds := uint(period / time.Second)
	if seconds == 0 {
		return nil, fmt.Errorf("otp: period %s is shorter than one second", period)
	}

	return &Generator{salt: salt, period: seconds}, nil
}

// Generate derives a fresh secret for phoneNumber at the given instant and
// returns the code of the window containing it.
func (g *Generator) Generate(phoneNumber string, at time.Time) (string, error) {
	return g.Code(DeriveSecret(phoneNumber, g.salt, at), at)
}

// Code computes the TOTP code of secret for the window containing at.
func (g *Generator) Code(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    g.period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("otp: failed to generate code: %w", err)
	}

	return code, nil
}
