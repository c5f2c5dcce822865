package service

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	msgPhoneRequired = "Phone number is required."
	msgPhoneInvalid  = "Phone number is invalid"
	msgPhoneTooLong  = "Phone number is too long"
)

var reDigits = regexp.MustCompile(`^[0-9]+$`)

type phoneNumberInput struct {
	PhoneNumber string `validate:"required,digits,max=11"`
}

// PhoneValidator checks phone numbers submitted for an OTP request.
type PhoneValidator struct {
	validate *validator.Validate
}

func NewPhoneValidator() (*PhoneValidator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// The built-in "numeric" accepts signs and decimals.
	if err := validate.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return reDigits.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}

	return &PhoneValidator{validate: validate}, nil
}

// Validate returns a *ValidationError describing the first failed rule.
func (v *PhoneValidator) Validate(phoneNumber string) error {
	err := v.validate.Struct(phoneNumberInput{PhoneNumber: phoneNumber})
	if err == nil {
		return nil
	}

	var validateErrs validator.ValidationErrors
	if !errors.As(err, &validateErrs) || len(validateErrs) == 0 {
		return err
	}

	msg := msgPhoneInvalid
	switch validateErrs[0].Tag() {
	case "required":
		msg = msgPhoneRequired
	case "max":
		msg = msgPhoneTooLong
	}

	return &ValidationError{Field: "phone_number", Message: msg}
}

// NormalizePhoneNumber trims whitespace and maps Persian and Arabic-Indic
// digits to ASCII.
func NormalizePhoneNumber(phoneNumber string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		}
		return r
	}, strings.TrimSpace(phoneNumber))
}
