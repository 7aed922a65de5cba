// Package pricing computes the provider cost and the customer price for
// one unit of AI-model usage. The engine combines a model tariff, the
// system-wide margin and an optional per-user margin into a single quote.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bananabot/pricing/internal/domain"
)

// TariffStore resolves the pricing configuration for a model.
type TariffStore interface {
	GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error)
}

// SettingsStore resolves the system-wide margin settings.
type SettingsStore interface {
	GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error)
}

// UserMarginStore resolves the personal margin override for a user.
type UserMarginStore interface {
	GetUserMargin(ctx context.Context, userID string) (float64, error)
}

// Engine is a pure calculator over three read-only lookups. It holds no
// mutable state and is safe for unbounded concurrent use.
type Engine struct {
	tariffs        TariffStore
	settings       SettingsStore
	users          UserMarginStore
	creditPrice    float64
	validateShapes bool
}

type Option func(*Engine)

// WithoutShapeValidation disables the usage-vs-tariff consistency check,
// restoring the permissive behavior where a mismatched usage shape falls
// through the strategy chain and prices as zero or gets overwritten.
func WithoutShapeValidation() Option {
	return func(e *Engine) {
		e.validateShapes = false
	}
}

// WithCreditPrice overrides the deployment-wide USD price of one video
// credit. Per-tariff CreditPriceUSD still takes precedence.
func WithCreditPrice(price float64) Option {
	return func(e *Engine) {
		if price > 0 {
			e.creditPrice = price
		}
	}
}

func NewEngine(tariffs TariffStore, settings SettingsStore, users UserMarginStore, opts ...Option) *Engine {
	e := &Engine{
		tariffs:        tariffs,
		settings:       settings,
		users:          users,
		creditPrice:    domain.DefaultCreditPriceUSD,
		validateShapes: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Quote computes the provider cost and the marked-up customer price for
// one request. userID may be empty, in which case no personal margin is
// applied. A missing tariff is fatal; missing settings or user records
// degrade to a zero margin contribution.
func (e *Engine) Quote(ctx context.Context, modelID string, usage domain.Usage, userID string) (*domain.PriceResult, error) {
	if err := validateUsage(usage); err != nil {
		return nil, err
	}

	tariff, err := e.tariffs.GetTariff(ctx, modelID)
	if err != nil {
		if errors.Is(err, domain.ErrTariffNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("lookup tariff: %w", err)
	}

	if e.validateShapes {
		if err := validateShape(tariff, usage); err != nil {
			return nil, err
		}
	}

	// Zero usage prices as zero regardless of margins; skip the lookups.
	if usage.IsZero() {
		return &domain.PriceResult{}, nil
	}

	systemMargin, err := e.systemMargin(ctx)
	if err != nil {
		return nil, err
	}

	userMargin, err := e.userMargin(ctx, userID)
	if err != nil {
		return nil, err
	}

	cost := roundTo6(accumulateCost(tariff, usage, e.creditPrice))

	totalMargin := systemMargin + tariff.ModelMargin + userMargin
	price := ceilToCents(cost * (1 + totalMargin))

	return &domain.PriceResult{
		CostUSD:  cost,
		PriceUSD: price,
		Margin:   roundTo6(price - cost),
	}, nil
}

func (e *Engine) systemMargin(ctx context.Context) (float64, error) {
	settings, err := e.settings.GetSystemSettings(ctx)
	if err != nil {
		// The singleton row is expected to exist, but its absence must
		// not fail the calculation.
		if errors.Is(err, domain.ErrSettingsNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup system settings: %w", err)
	}
	return settings.SystemMargin, nil
}

func (e *Engine) userMargin(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return 0, nil
	}
	margin, err := e.users.GetUserMargin(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup user margin: %w", err)
	}
	return margin, nil
}

func validateUsage(u domain.Usage) error {
	if u.PromptTokens < 0 || u.OutputTokens < 0 || u.ImageCount < 0 {
		return domain.ErrInvalidUsage
	}
	for _, v := range []float64{u.VideoSeconds, u.AudioMinutes} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.ErrInvalidUsage
		}
	}
	return nil
}

// validateShape rejects usage that cannot be priced by the tariff's unit:
// token-style usage against a per-second tariff, and video seconds against
// a tariff that has no video path at all.
func validateShape(t *domain.ModelTariff, u domain.Usage) error {
	if t.PriceUnit == domain.PriceUnitPerSecond {
		if u.PromptTokens > 0 || u.OutputTokens > 0 || u.ImageCount > 0 {
			return domain.ErrUsageMismatch
		}
	}
	if u.VideoSeconds > 0 && t.CreditsPerSecond == nil {
		if t.PriceUnit != domain.PriceUnitPerSecond || t.OutputVideoPrice == nil {
			return domain.ErrUsageMismatch
		}
	}
	return nil
}

func roundTo6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// ceilToCents rounds a price up to the next cent. Values already within
// floating-point noise of an exact cent are kept, so a cost of 0.20 does
// not become 0.21.
func ceilToCents(v float64) float64 {
	cents := v * 100
	if nearest := math.Round(cents); math.Abs(cents-nearest) < 1e-9 {
		return nearest / 100
	}
	return math.Ceil(cents) / 100
}
