package repository

import (
	"context"
	"errors"
	"time"

	"github.com/therapycenter/phoneauth/internal/models"
)

// ErrNotFound is returned when a user or a one-time password does not exist,
// and when a conditional delete finds the record changed or already gone.
var ErrNotFound = errors.New("record not found")

type UserRepository interface {
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.User, error)
	// GetOrCreate returns the user, creating it with the client role when
	// absent. Concurrent calls for one phone number yield the same user.
	GetOrCreate(ctx context.Context, phoneNumber string) (*models.User, error)
}

// OTPRepository keeps at most one pending code per user.
type OTPRepository interface {
	// Upsert stores value with an expiry of now+validity, replacing the value
	// and expiry of an existing record in place. The caller must create the
	// user first: stores that also hold users (memory, Postgres) return
	// ErrNotFound for an unknown phone number, the others do not check.
	Upsert(ctx context.Context, phoneNumber, value string, validity time.Duration) (*models.OneTimePassword, error)
	Get(ctx context.Context, phoneNumber string) (*models.OneTimePassword, error)
	// Delete removes the record only while it still holds value. Of two
	// concurrent deletes for the same value exactly one succeeds; the other
	// gets ErrNotFound.
	Delete(ctx context.Context, phoneNumber, value string) error
}
