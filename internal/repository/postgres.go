package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/models"
)

// PostgresRepository serves both users and one-time passwords from a schema
// of the following shape (migrations are managed outside this service):
//
//	users(id BIGSERIAL PRIMARY KEY, phone_number VARCHAR(11) UNIQUE NOT NULL,
//	      role VARCHAR(20) NOT NULL DEFAULT 'client', created_at TIMESTAMPTZ NOT NULL)
//	one_time_passwords(id BIGSERIAL PRIMARY KEY,
//	      user_id BIGINT UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
//	      value TEXT NOT NULL, expire_time TIMESTAMPTZ NOT NULL,
//	      created_at TIMESTAMPTZ NOT NULL, updated_at TIMESTAMPTZ NOT NULL)
type PostgresRepository struct {
	db     PgxQuerier
	clock  clock.Clocker
	logger *logrus.Logger
}

// PgxQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgresRepository(db PgxQuerier, clk clock.Clocker, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, clock: clk, logger: logger}
}

func (r *PostgresRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error) {
	row := r.db.QueryRow(ctx, `SELECT phone_number, role, created_at FROM users WHERE phone_number = $1`, phoneNumber)

	var user models.User
	if err := row.Scan(&user.PhoneNumber, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.WithError(err).Error("Failed to get user from Postgres")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, phoneNumber string) (*models.User, error) {
	tag, err := r.db.Exec(ctx, `INSERT INTO users (phone_number, role, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (phone_number) DO NOTHING`, phoneNumber, string(models.RoleClient), r.clock.Now().UTC())
	if err != nil {
		r.logger.WithError(err).Error("Failed to create user in Postgres")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if tag.RowsAffected() == 1 {
		r.logger.WithField("phone", phoneNumber).Info("User created")
	}

	return r.GetByPhoneNumber(ctx, phoneNumber)
}

// Upsert relies on the unique user_id index, so concurrent requests for one
// user converge on a single row.
func (r *PostgresRepository) Upsert(ctx context.Context, phoneNumber, value string, validity time.Duration) (*models.OneTimePassword, error) {
	now := r.clock.Now().UTC()

	row := r.db.QueryRow(ctx, `INSERT INTO one_time_passwords (user_id, value, expire_time, created_at, updated_at)
        SELECT id, $2, $3, $4, $4 FROM users WHERE phone_number = $1
        ON CONFLICT (user_id) DO UPDATE
            SET value = EXCLUDED.value, expire_time = EXCLUDED.expire_time, updated_at = EXCLUDED.updated_at
        RETURNING value, expire_time, created_at, updated_at`, phoneNumber, value, now.Add(validity), now)

	record := &models.OneTimePassword{PhoneNumber: phoneNumber}
	if err := row.Scan(&record.Value, &record.ExpireTime, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.WithError(err).Error("Failed to store OTP in Postgres")
		return nil, fmt.Errorf("failed to store OTP: %w", err)
	}

	normalizeTimes(record)
	return record, nil
}

func (r *PostgresRepository) Get(ctx context.Context, phoneNumber string) (*models.OneTimePassword, error) {
	row := r.db.QueryRow(ctx, `SELECT o.value, o.expire_time, o.created_at, o.updated_at
        FROM one_time_passwords o JOIN users u ON u.id = o.user_id
        WHERE u.phone_number = $1`, phoneNumber)

	record := &models.OneTimePassword{PhoneNumber: phoneNumber}
	if err := row.Scan(&record.Value, &record.ExpireTime, &record.CreatedAt, &record.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get OTP: %w", err)
	}

	normalizeTimes(record)
	return record, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, phoneNumber, value string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM one_time_passwords o USING users u
        WHERE o.user_id = u.id AND u.phone_number = $1 AND o.value = $2`, phoneNumber, value)
	if err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func normalizeTimes(o *models.OneTimePassword) {
	o.ExpireTime = o.ExpireTime.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
}
