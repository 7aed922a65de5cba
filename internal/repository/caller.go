package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bananabot/pricing/internal/crypto"
	"github.com/bananabot/pricing/internal/domain"
)

// CallerRepository stores the API clients of this service.
type CallerRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Caller, error)
	GetByID(ctx context.Context, id string) (*domain.Caller, error)
	List(ctx context.Context) ([]*domain.Caller, error)
	Create(ctx context.Context, caller *domain.Caller) error
	Update(ctx context.Context, caller *domain.Caller) error
}

type InMemoryCallerRepository struct {
	mu      sync.RWMutex
	callers map[string]*domain.Caller
	byKey   map[string]string
}

// NewInMemoryCallerRepository seeds a default caller so the service is
// usable without provisioning. Not for production deployments.
func NewInMemoryCallerRepository() *InMemoryCallerRepository {
	repo := &InMemoryCallerRepository{
		callers: make(map[string]*domain.Caller),
		byKey:   make(map[string]string),
	}

	defaultCaller := &domain.Caller{
		ID:           "default",
		Name:         "default",
		APIKeyHash:   crypto.HashAPIKey("pr-default-key"),
		Role:         "admin",
		RateLimitRPM: 100,
		Enabled:      true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	repo.callers[defaultCaller.ID] = defaultCaller
	repo.byKey[defaultCaller.APIKeyHash] = defaultCaller.ID

	return repo
}

func (r *InMemoryCallerRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Caller, error) {
	if apiKey == "" {
		return nil, domain.ErrInvalidAPIKey
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hash := crypto.HashAPIKey(apiKey)
	callerID, ok := r.byKey[hash]
	if !ok {
		return nil, domain.ErrCallerNotFound
	}

	caller, ok := r.callers[callerID]
	if !ok || !caller.Enabled {
		return nil, domain.ErrCallerNotFound
	}
	c := *caller
	return &c, nil
}

func (r *InMemoryCallerRepository) GetByID(ctx context.Context, id string) (*domain.Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caller, ok := r.callers[id]
	if !ok {
		return nil, domain.ErrCallerNotFound
	}
	c := *caller
	return &c, nil
}

func (r *InMemoryCallerRepository) List(ctx context.Context) ([]*domain.Caller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	callers := make([]*domain.Caller, 0, len(r.callers))
	for _, caller := range r.callers {
		c := *caller
		callers = append(callers, &c)
	}
	return callers, nil
}

func (r *InMemoryCallerRepository) Create(ctx context.Context, caller *domain.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *caller
	r.callers[c.ID] = &c
	r.byKey[c.APIKeyHash] = c.ID
	return nil
}

func (r *InMemoryCallerRepository) Update(ctx context.Context, caller *domain.Caller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.callers[caller.ID]
	if !ok {
		return domain.ErrCallerNotFound
	}

	if old.APIKeyHash != caller.APIKeyHash {
		delete(r.byKey, old.APIKeyHash)
		r.byKey[caller.APIKeyHash] = caller.ID
	}

	caller.UpdatedAt = time.Now()
	c := *caller
	r.callers[c.ID] = &c
	return nil
}
