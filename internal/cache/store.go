package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bananabot/pricing/internal/domain"
	"github.com/bananabot/pricing/internal/metrics"
	"github.com/bananabot/pricing/internal/pricing"
)

// DefaultTTL bounds how long an admin pricing change can go unseen by the
// quote path. Kept short on purpose.
const DefaultTTL = 30 * time.Second

const settingsKey = "pricing:settings"

func tariffKey(modelID string) string {
	return "pricing:tariff:" + modelID
}

// TariffStore wraps a pricing.TariffStore with a TTL cache. Not-found
// results are never cached so a freshly created tariff is visible
// immediately. Cache failures degrade to the underlying store.
type TariffStore struct {
	inner pricing.TariffStore
	cache Cache
	ttl   time.Duration
}

func NewTariffStore(inner pricing.TariffStore, cache Cache, ttl time.Duration) *TariffStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TariffStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *TariffStore) GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
	key := tariffKey(modelID)

	if data, ok := s.cache.Get(ctx, key); ok {
		var tariff domain.ModelTariff
		if err := json.Unmarshal(data, &tariff); err == nil {
			metrics.TariffCacheHits.Inc()
			return &tariff, nil
		}
	}
	metrics.TariffCacheMisses.Inc()

	tariff, err := s.inner.GetTariff(ctx, modelID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tariff); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			slog.Warn("failed to cache tariff", "model", modelID, "error", err)
		}
	}

	return tariff, nil
}

// Invalidate drops a cached tariff after an admin update.
func (s *TariffStore) Invalidate(ctx context.Context, modelID string) {
	if err := s.cache.Delete(ctx, tariffKey(modelID)); err != nil {
		slog.Warn("failed to invalidate tariff cache", "model", modelID, "error", err)
	}
}

// SettingsStore wraps a pricing.SettingsStore with a TTL cache. An absent
// singleton row is never cached; absence passes through so the engine's
// zero-margin fallback applies.
type SettingsStore struct {
	inner pricing.SettingsStore
	cache Cache
	ttl   time.Duration
}

func NewSettingsStore(inner pricing.SettingsStore, cache Cache, ttl time.Duration) *SettingsStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SettingsStore{inner: inner, cache: cache, ttl: ttl}
}

func (s *SettingsStore) GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error) {
	if data, ok := s.cache.Get(ctx, settingsKey); ok {
		var settings domain.SystemSettings
		if err := json.Unmarshal(data, &settings); err == nil {
			return &settings, nil
		}
	}

	settings, err := s.inner.GetSystemSettings(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(settings); err == nil {
		if err := s.cache.Set(ctx, settingsKey, data, s.ttl); err != nil {
			slog.Warn("failed to cache settings", "error", err)
		}
	}

	return settings, nil
}

// Invalidate drops the cached settings after an admin update.
func (s *SettingsStore) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, settingsKey); err != nil {
		slog.Warn("failed to invalidate settings cache", "error", err)
	}
}
