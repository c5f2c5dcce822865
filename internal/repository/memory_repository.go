package repository

import (
	"context"
	"sync"
	"time"

	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/models"
)

// MemoryRepository holds users and one-time passwords in process memory. It
// backs local runs and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	clock clock.Clocker
	users map[string]models.User
	otps  map[string]models.OneTimePassword
}

func NewMemoryRepository(clk clock.Clocker) *MemoryRepository {
	return &MemoryRepository{
		clock: clk,
		users: make(map[string]models.User),
		otps:  make(map[string]models.OneTimePassword),
	}
}

func (r *MemoryRepository) GetByPhoneNumber(_ context.Context, phoneNumber string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[phoneNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, phoneNumber string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[phoneNumber]
	if !ok {
		user = models.User{
			PhoneNumber: phoneNumber,
			Role:        models.RoleClient,
			CreatedAt:   r.clock.Now().UTC(),
		}
		r.users[phoneNumber] = user
	}
	return &user, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, phoneNumber, value string, validity time.Duration) (*models.OneTimePassword, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[phoneNumber]; !ok {
		return nil, ErrNotFound
	}

	now := r.clock.Now().UTC()
	record, ok := r.otps[phoneNumber]
	if !ok {
		record = models.OneTimePassword{PhoneNumber: phoneNumber, CreatedAt: now}
	}
	record.Value = value
	record.ExpireTime = now.Add(validity)
	record.UpdatedAt = now
	r.otps[phoneNumber] = record

	return &record, nil
}

func (r *MemoryRepository) Get(_ context.Context, phoneNumber string) (*models.OneTimePassword, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.otps[phoneNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (r *MemoryRepository) Delete(_ context.Context, phoneNumber, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.otps[phoneNumber]
	if !ok || record.Value != value {
		return ErrNotFound
	}
	delete(r.otps, phoneNumber)
	return nil
}

// Count returns the number of stored one-time passwords.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.otps)
}
