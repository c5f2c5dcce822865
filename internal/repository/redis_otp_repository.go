package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/models"
)

const redisMaxRetries = 4

var errValueChanged = errors.New("otp value changed")

// redisGetter is satisfied by *redis.Client and *redis.Tx.
type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisOTPRepository keeps pending codes as JSON under "otp:<phone>". Writes
// that depend on the current value run in WATCH transactions.
type RedisOTPRepository struct {
	client    *redis.Client
	retention time.Duration
	clock     clock.Clocker
	logger    *logrus.Logger
}

func NewRedisOTPRepository(client *redis.Client, retention time.Duration, clk clock.Clocker, logger *logrus.Logger) *RedisOTPRepository {
	return &RedisOTPRepository{
		client:    client,
		retention: retention,
		clock:     clk,
		logger:    logger,
	}
}

func (r *RedisOTPRepository) key(phoneNumber string) string {
	return fmt.Sprintf("otp:%s", phoneNumber)
}

func (r *RedisOTPRepository) Upsert(ctx context.Context, phoneNumber, value string, validity time.Duration) (*models.OneTimePassword, error) {
	key := r.key(phoneNumber)

	for i := 0; i < redisMaxRetries; i++ {
		var record *models.OneTimePassword

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			now := r.clock.Now().UTC()
			record = &models.OneTimePassword{
				PhoneNumber: phoneNumber,
				Value:       value,
				ExpireTime:  now.Add(validity),
				CreatedAt:   now,
				UpdatedAt:   now,
			}

			existing, err := r.read(ctx, tx, key)
			switch {
			case err == nil:
				record.CreatedAt = existing.CreatedAt
			case !errors.Is(err, ErrNotFound):
				return err
			}

			dataJSON, err := json.Marshal(record)
			if err != nil {
				return fmt.Errorf("failed to marshal OTP data: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, dataJSON, validity+r.retention)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			r.logger.WithError(err).Error("Failed to store OTP in Redis")
			return nil, fmt.Errorf("failed to store OTP: %w", err)
		}

		return record, nil
	}

	return nil, fmt.Errorf("failed to store OTP: %w", redis.TxFailedErr)
}

func (r *RedisOTPRepository) Get(ctx context.Context, phoneNumber string) (*models.OneTimePassword, error) {
	record, err := r.read(ctx, r.client, r.key(phoneNumber))
	if err != nil && !errors.Is(err, ErrNotFound) {
		r.logger.WithError(err).Error("Failed to get OTP from Redis")
	}
	return record, err
}

func (r *RedisOTPRepository) Delete(ctx context.Context, phoneNumber, value string) error {
	key := r.key(phoneNumber)

	for i := 0; i < redisMaxRetries; i++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			record, err := r.read(ctx, tx, key)
			if err != nil {
				return err
			}

			if record.Value != value {
				return errValueChanged
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}, key)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotFound), errors.Is(err, errValueChanged):
			return ErrNotFound
		default:
			return fmt.Errorf("failed to delete OTP: %w", err)
		}
	}

	// Every attempt lost to a concurrent writer; the record is no longer the
	// one the caller read.
	return ErrNotFound
}

func (r *RedisOTPRepository) read(ctx context.Context, c redisGetter, key string) (*models.OneTimePassword, error) {
	dataJSON, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	var record models.OneTimePassword
	if err := json.Unmarshal(dataJSON, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OTP data: %w", err)
	}

	return &record, nil
}
