package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

// TariffRepository stores per-model pricing configurations. GetTariff
// satisfies the engine's read interface directly.
type TariffRepository interface {
	GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error)
	List(ctx context.Context) ([]*domain.ModelTariff, error)
	Create(ctx context.Context, tariff *domain.ModelTariff) error
	Update(ctx context.Context, tariff *domain.ModelTariff) error
	Delete(ctx context.Context, modelID string) error
}

type InMemoryTariffRepository struct {
	mu      sync.RWMutex
	tariffs map[string]*domain.ModelTariff
}

func NewInMemoryTariffRepository() *InMemoryTariffRepository {
	return &InMemoryTariffRepository{
		tariffs: make(map[string]*domain.ModelTariff),
	}
}

func (r *InMemoryTariffRepository) GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tariff, ok := r.tariffs[modelID]
	if !ok {
		return nil, domain.ErrTariffNotFound
	}
	return tariff, nil
}

func (r *InMemoryTariffRepository) List(ctx context.Context) ([]*domain.ModelTariff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tariffs := make([]*domain.ModelTariff, 0, len(r.tariffs))
	for _, t := range r.tariffs {
		tariffs = append(tariffs, t)
	}
	return tariffs, nil
}

func (r *InMemoryTariffRepository) Create(ctx context.Context, tariff *domain.ModelTariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tariffs[tariff.ModelID] = tariff
	return nil
}

func (r *InMemoryTariffRepository) Update(ctx context.Context, tariff *domain.ModelTariff) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tariffs[tariff.ModelID]; !ok {
		return domain.ErrTariffNotFound
	}

	tariff.UpdatedAt = time.Now()
	r.tariffs[tariff.ModelID] = tariff
	return nil
}

func (r *InMemoryTariffRepository) Delete(ctx context.Context, modelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tariffs[modelID]; !ok {
		return domain.ErrTariffNotFound
	}

	delete(r.tariffs, modelID)
	return nil
}
