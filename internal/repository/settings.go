package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

// SettingsRepository stores the singleton system-wide pricing settings.
type SettingsRepository interface {
	GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error)
	UpdateSystemSettings(ctx context.Context, systemMargin float64) (*domain.SystemSettings, error)
}

// UserRepository stores per-user personal margin overrides, keyed by the
// bot's user identifier.
type UserRepository interface {
	GetUserMargin(ctx context.Context, userID string) (float64, error)
	SetUserMargin(ctx context.Context, userID string, margin float64) error
	GetSpendLimit(ctx context.Context, userID string) (float64, error)
	SetSpendLimit(ctx context.Context, userID string, limitUSD float64) error
}

type InMemorySettingsRepository struct {
	mu       sync.RWMutex
	settings *domain.SystemSettings
}

func NewInMemorySettingsRepository() *InMemorySettingsRepository {
	return &InMemorySettingsRepository{}
}

func (r *InMemorySettingsRepository) GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings == nil {
		return nil, domain.ErrSettingsNotFound
	}
	return r.settings, nil
}

func (r *InMemorySettingsRepository) UpdateSystemSettings(ctx context.Context, systemMargin float64) (*domain.SystemSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = &domain.SystemSettings{
		SystemMargin: systemMargin,
		UpdatedAt:    time.Now(),
	}
	return r.settings, nil
}

type userRecord struct {
	margin     float64
	spendLimit float64
}

type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[string]*userRecord),
	}
}

func (r *InMemoryUserRepository) GetUserMargin(ctx context.Context, userID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return user.margin, nil
}

func (r *InMemoryUserRepository) SetUserMargin(ctx context.Context, userID string, margin float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		user = &userRecord{}
		r.users[userID] = user
	}
	user.margin = margin
	return nil
}

func (r *InMemoryUserRepository) GetSpendLimit(ctx context.Context, userID string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return user.spendLimit, nil
}

func (r *InMemoryUserRepository) SetSpendLimit(ctx context.Context, userID string, limitUSD float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		user = &userRecord{}
		r.users[userID] = user
	}
	user.spendLimit = limitUSD
	return nil
}
