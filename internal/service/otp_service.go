package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/config"
	"github.com/therapycenter/phoneauth/internal/otp"
	"github.com/therapycenter/phoneauth/internal/repository"
	"github.com/therapycenter/phoneauth/internal/sms"
)

// Sender delivers a plaintext code to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, mobile, code string) (*sms.Delivery, error)
}

type OTPService struct {
	users     repository.UserRepository
	otps      repository.OTPRepository
	sender    Sender
	generator *otp.Generator
	cipher    *otp.Cipher
	validator *PhoneValidator
	clock     clock.Clocker
	validity  time.Duration
	logger    *logrus.Logger
}

// NewOTPService wires the request and verify flow. It fails when the salt or
// encryption key in cfg is unusable.
func NewOTPService(
	users repository.UserRepository,
	otps repository.OTPRepository,
	sender Sender,
	cfg *config.OTPConfig,
	clk clock.Clocker,
	logger *logrus.Logger,
) (*OTPService, error) {
	generator, err := otp.NewGenerator(cfg.SecretSalt, cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTP generator: %w", err)
	}

	cipher, err := otp.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCrypto, err)
	}

	validator, err := NewPhoneValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize validator: %w", err)
	}

	return &OTPService{
		users:     users,
		otps:      otps,
		sender:    sender,
		generator: generator,
		cipher:    cipher,
		validator: validator,
		clock:     clk,
		validity:  cfg.Validity,
		logger:    logger,
	}, nil
}

// RequestOTP issues a fresh code for phoneNumber, stores it sealed, and sends
// it by SMS. A *ValidationError rejects bad input; ErrDeliveryFailed means the
// code is stored but the gateway did not confirm the message.
func (s *OTPService) RequestOTP(ctx context.Context, phoneNumber string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber)
	if err := s.validator.Validate(phoneNumber); err != nil {
		return err
	}

	if _, err := s.users.GetOrCreate(ctx, phoneNumber); err != nil {
		return fmt.Errorf("failed to get or create user: %w", err)
	}

	code, err := s.generator.Generate(phoneNumber, s.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to generate OTP: %w", err)
	}

	sealed, err := s.cipher.Encrypt(code, phoneNumber)
	if err != nil {
		return s.cryptoFailure(phoneNumber, err)
	}

	record, err := s.otps.Upsert(ctx, phoneNumber, sealed, s.validity)
	if err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}

	plain, err := s.cipher.Decrypt(record.Value, phoneNumber)
	if err != nil {
		return s.cryptoFailure(phoneNumber, err)
	}

	if _, err := s.sender.SendOTP(ctx, phoneNumber, plain); err != nil {
		s.logger.WithError(err).WithField("phone", phoneNumber).Warn("OTP stored but not delivered")
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	s.logger.WithFields(logrus.Fields{
		"phone":       phoneNumber,
		"expire_time": record.ExpireTime,
	}).Info("OTP issued")

	return nil
}

// VerifyOTP checks code against the pending OTP of phoneNumber. It returns
// nil when verified. The record is consumed on success and on expiry, and
// kept on a mismatch so the user may retry.
func (s *OTPService) VerifyOTP(ctx context.Context, phoneNumber, code string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber)

	if _, err := s.users.GetByPhoneNumber(ctx, phoneNumber); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotRegistered
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	if utf8.RuneCountInString(code) != otp.CodeLength {
		return ErrInvalidFormat
	}

	record, err := s.otps.Get(ctx, phoneNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.missingOTP(ctx, phoneNumber)
		}
		return fmt.Errorf("failed to get OTP: %w", err)
	}

	stored, err := s.cipher.Decrypt(record.Value, phoneNumber)
	if err != nil {
		return s.cryptoFailure(phoneNumber, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		s.logger.WithField("phone", phoneNumber).Info("OTP mismatch")
		return ErrMismatch
	}

	expired := record.IsExpired(s.clock.Now())

	// Only the caller whose delete removes this exact record wins.
	if err := s.otps.Delete(ctx, phoneNumber, record.Value); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoPendingOTP
		}
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	if expired {
		s.logger.WithField("phone", phoneNumber).Info("OTP expired")
		return ErrExpired
	}

	s.logger.WithField("phone", phoneNumber).Info("OTP verified")
	return nil
}

func (s *OTPService) missingOTP(ctx context.Context, phoneNumber string) error {
	if _, err := s.users.GetByPhoneNumber(ctx, phoneNumber); errors.Is(err, repository.ErrNotFound) {
		return ErrUserNotFound
	}
	return ErrNoPendingOTP
}

func (s *OTPService) cryptoFailure(phoneNumber string, err error) error {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"phone": phoneNumber,
		"alert": true,
	}).Error("OTP cipher failure")
	return fmt.Errorf("%w: %w", ErrCrypto, err)
}
