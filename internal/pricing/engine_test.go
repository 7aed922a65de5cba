package pricing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/bananabot/pricing/internal/domain"
)

// =============================================================================
// Mock Implementations (Interface-Based Mocking Pattern)
// =============================================================================

type MockTariffStore struct {
	GetTariffFunc func(ctx context.Context, modelID string) (*domain.ModelTariff, error)
}

func (m *MockTariffStore) GetTariff(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
	if m.GetTariffFunc != nil {
		return m.GetTariffFunc(ctx, modelID)
	}
	return nil, domain.ErrTariffNotFound
}

type MockSettingsStore struct {
	GetSystemSettingsFunc func(ctx context.Context) (*domain.SystemSettings, error)
}

func (m *MockSettingsStore) GetSystemSettings(ctx context.Context) (*domain.SystemSettings, error) {
	if m.GetSystemSettingsFunc != nil {
		return m.GetSystemSettingsFunc(ctx)
	}
	return nil, domain.ErrSettingsNotFound
}

type MockUserMarginStore struct {
	GetUserMarginFunc func(ctx context.Context, userID string) (float64, error)
}

func (m *MockUserMarginStore) GetUserMargin(ctx context.Context, userID string) (float64, error) {
	if m.GetUserMarginFunc != nil {
		return m.GetUserMarginFunc(ctx, userID)
	}
	return 0, domain.ErrUserNotFound
}

func fp(v float64) *float64 { return &v }
func ip(v int64) *int64     { return &v }

func newTestEngine(tariff *domain.ModelTariff, systemMargin float64, opts ...Option) *Engine {
	return NewEngine(
		&MockTariffStore{
			GetTariffFunc: func(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
				if tariff != nil && modelID == tariff.ModelID {
					return tariff, nil
				}
				return nil, domain.ErrTariffNotFound
			},
		},
		&MockSettingsStore{
			GetSystemSettingsFunc: func(ctx context.Context) (*domain.SystemSettings, error) {
				return &domain.SystemSettings{SystemMargin: systemMargin}, nil
			},
		},
		&MockUserMarginStore{},
		opts...,
	)
}

func TestEngine_Quote_TokenTariff(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:     "gemini-2.5-flash",
		PriceUnit:   domain.PriceUnitPerMillionTokens,
		InputPrice:  fp(1.0),
		OutputPrice: fp(2.0),
		ModelMargin: 0.10,
	}
	engine := newTestEngine(tariff, 0.05)

	result, err := engine.Quote(context.Background(), "gemini-2.5-flash", domain.Usage{
		PromptTokens: 1_000_000,
		OutputTokens: 1_000_000,
	}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 3 {
		t.Errorf("CostUSD = %v, want 3", result.CostUSD)
	}
	if result.PriceUSD != 3.45 {
		t.Errorf("PriceUSD = %v, want 3.45", result.PriceUSD)
	}
	if result.Margin != 0.45 {
		t.Errorf("Margin = %v, want 0.45", result.Margin)
	}
}

func TestEngine_Quote_VideoPerSecond(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "veo-3",
		PriceUnit:        domain.PriceUnitPerSecond,
		OutputVideoPrice: fp(0.1),
		ModelMargin:      0.20,
	}
	engine := newTestEngine(tariff, 0.05)

	result, err := engine.Quote(context.Background(), "veo-3", domain.Usage{VideoSeconds: 10}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 1 {
		t.Errorf("CostUSD = %v, want 1", result.CostUSD)
	}
	if result.PriceUSD != 1.25 {
		t.Errorf("PriceUSD = %v, want 1.25", result.PriceUSD)
	}
}

func TestEngine_Quote_VideoPerCredit(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "kling-v2",
		CreditsPerSecond: fp(2),
		CreditPriceUSD:   fp(0.02),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "kling-v2", domain.Usage{VideoSeconds: 5}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 0.2 {
		t.Errorf("CostUSD = %v, want 0.2", result.CostUSD)
	}
	if result.PriceUSD != 0.2 {
		t.Errorf("PriceUSD = %v, want 0.2 (exact cents must not be bumped)", result.PriceUSD)
	}
}

func TestEngine_Quote_VideoCreditDefaultPrice(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "kling-v1",
		CreditsPerSecond: fp(4),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "kling-v1", domain.Usage{VideoSeconds: 10}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// 10s * 4 credits * $0.01 default credit price
	if result.CostUSD != 0.4 {
		t.Errorf("CostUSD = %v, want 0.4", result.CostUSD)
	}
}

func TestEngine_Quote_ConfiguredCreditPrice(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "kling-v1",
		CreditsPerSecond: fp(4),
	}
	engine := newTestEngine(tariff, 0, WithCreditPrice(0.02))

	result, err := engine.Quote(context.Background(), "kling-v1", domain.Usage{VideoSeconds: 10}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// 10s * 4 credits * $0.02 configured credit price
	if result.CostUSD != 0.8 {
		t.Errorf("CostUSD = %v, want 0.8", result.CostUSD)
	}
}

func TestEngine_Quote_TariffCreditPriceBeatsConfigured(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "kling-v1",
		CreditsPerSecond: fp(4),
		CreditPriceUSD:   fp(0.05),
	}
	engine := newTestEngine(tariff, 0, WithCreditPrice(0.02))

	result, err := engine.Quote(context.Background(), "kling-v1", domain.Usage{VideoSeconds: 10}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// the tariff override wins: 10s * 4 credits * $0.05
	if result.CostUSD != 2.0 {
		t.Errorf("CostUSD = %v, want 2.0", result.CostUSD)
	}
}

func TestEngine_Quote_ImageOnly(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:            "gemini-image",
		OutputImagePrice:   fp(10),
		ImageTokensHighRes: ip(1000),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "gemini-image", domain.Usage{ImageCount: 2}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 0.02 {
		t.Errorf("CostUSD = %v, want 0.02", result.CostUSD)
	}
}

func TestEngine_Quote_ImageTokenFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		tariff   *domain.ModelTariff
		expected float64
	}{
		{
			name: "high res preferred over low res",
			tariff: &domain.ModelTariff{
				ModelID:            "m",
				OutputImagePrice:   fp(10),
				ImageTokensHighRes: ip(2000),
				ImageTokensLowRes:  ip(500),
			},
			expected: 0.02, // 1 * 2000 / 1M * 10
		},
		{
			name: "low res when high res unset",
			tariff: &domain.ModelTariff{
				ModelID:           "m",
				OutputImagePrice:  fp(10),
				ImageTokensLowRes: ip(500),
			},
			expected: 0.005,
		},
		{
			name: "default token count when neither set",
			tariff: &domain.ModelTariff{
				ModelID:          "m",
				OutputImagePrice: fp(10),
			},
			expected: 0.0112, // 1120 / 1M * 10
		},
		{
			name: "image price falls back to output price",
			tariff: &domain.ModelTariff{
				ModelID:            "m",
				OutputPrice:        fp(10),
				ImageTokensHighRes: ip(1000),
			},
			expected: 0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(tt.tariff, 0)
			result, err := engine.Quote(context.Background(), "m", domain.Usage{ImageCount: 1}, "")
			if err != nil {
				t.Fatalf("Quote() error = %v", err)
			}
			if result.CostUSD != tt.expected {
				t.Errorf("CostUSD = %v, want %v", result.CostUSD, tt.expected)
			}
		})
	}
}

func TestEngine_Quote_LongContextOverride(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:         "gemini-long",
		InputPrice:      fp(1.0),
		OutputPrice:     fp(2.0),
		InputLongPrice:  fp(2.5),
		OutputLongPrice: fp(5.0),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "gemini-long", domain.Usage{
		PromptTokens: 1_000_000,
		OutputTokens: 1_000_000,
	}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 7.5 {
		t.Errorf("CostUSD = %v, want 7.5 (long-context prices must supersede)", result.CostUSD)
	}
}

func TestEngine_Quote_AudioAdditive(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "veo-audio",
		PriceUnit:        domain.PriceUnitPerSecond,
		OutputVideoPrice: fp(0.1),
		OutputAudioPrice: fp(0.3),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "veo-audio", domain.Usage{
		VideoSeconds: 10,
		AudioMinutes: 2,
	}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// 10s * 0.1 + 2min * 0.3 — audio stacks on top of the video path.
	if result.CostUSD != 1.6 {
		t.Errorf("CostUSD = %v, want 1.6", result.CostUSD)
	}
}

func TestEngine_Quote_CreditPathWinsOverPerSecond(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "video-both",
		PriceUnit:        domain.PriceUnitPerSecond,
		OutputVideoPrice: fp(1.0),
		CreditsPerSecond: fp(2),
		CreditPriceUSD:   fp(0.02),
	}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "video-both", domain.Usage{VideoSeconds: 5}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// Per-credit overwrites the per-second result: 5 * 2 * 0.02, not 5 * 1.0.
	if result.CostUSD != 0.2 {
		t.Errorf("CostUSD = %v, want 0.2", result.CostUSD)
	}
}

func TestEngine_Quote_TariffNotFound(t *testing.T) {
	engine := newTestEngine(nil, 0)

	_, err := engine.Quote(context.Background(), "unknown-model", domain.Usage{PromptTokens: 100}, "")
	if !errors.Is(err, domain.ErrTariffNotFound) {
		t.Errorf("expected ErrTariffNotFound, got %v", err)
	}
}

func TestEngine_Quote_ZeroUsageZeroPrices(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "bare"}
	engine := newTestEngine(tariff, 0.5)

	result, err := engine.Quote(context.Background(), "bare", domain.Usage{}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.CostUSD != 0 || result.PriceUSD != 0 || result.Margin != 0 {
		t.Errorf("expected all-zero result, got %+v", result)
	}
}

func TestEngine_Quote_ZeroUsageSkipsMarginLookups(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "m", InputPrice: fp(1.0)}
	engine := NewEngine(
		&MockTariffStore{
			GetTariffFunc: func(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
				return tariff, nil
			},
		},
		&MockSettingsStore{
			GetSystemSettingsFunc: func(ctx context.Context) (*domain.SystemSettings, error) {
				return nil, errors.New("settings store down")
			},
		},
		&MockUserMarginStore{},
	)

	result, err := engine.Quote(context.Background(), "m", domain.Usage{}, "u1")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if result.CostUSD != 0 || result.PriceUSD != 0 || result.Margin != 0 {
		t.Errorf("expected all-zero result, got %+v", result)
	}
}

func TestEngine_Quote_ZeroUsageUnknownModelStillFails(t *testing.T) {
	engine := newTestEngine(nil, 0)

	_, err := engine.Quote(context.Background(), "missing", domain.Usage{}, "")
	if !errors.Is(err, domain.ErrTariffNotFound) {
		t.Errorf("expected ErrTariffNotFound, got %v", err)
	}
}

func TestEngine_Quote_MissingSettingsTolerated(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:     "m",
		InputPrice:  fp(1.0),
		ModelMargin: 0.10,
	}
	engine := NewEngine(
		&MockTariffStore{
			GetTariffFunc: func(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
				return tariff, nil
			},
		},
		&MockSettingsStore{}, // returns ErrSettingsNotFound
		&MockUserMarginStore{},
	)

	result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: 1_000_000}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.PriceUSD != 1.1 {
		t.Errorf("PriceUSD = %v, want 1.10 (model margin only)", result.PriceUSD)
	}
}

func TestEngine_Quote_UnknownUserTolerated(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "m", InputPrice: fp(1.0)}
	engine := newTestEngine(tariff, 0)

	result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: 1_000_000}, "tg-777")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if result.PriceUSD != 1.0 {
		t.Errorf("PriceUSD = %v, want 1.00 (unknown user gets zero personal margin)", result.PriceUSD)
	}
}

func TestEngine_Quote_PersonalMarginApplied(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "m", InputPrice: fp(1.0), ModelMargin: 0.10}
	engine := NewEngine(
		&MockTariffStore{
			GetTariffFunc: func(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
				return tariff, nil
			},
		},
		&MockSettingsStore{
			GetSystemSettingsFunc: func(ctx context.Context) (*domain.SystemSettings, error) {
				return &domain.SystemSettings{SystemMargin: 0.05}, nil
			},
		},
		&MockUserMarginStore{
			GetUserMarginFunc: func(ctx context.Context, userID string) (float64, error) {
				if userID != "tg-42" {
					t.Errorf("unexpected userID %q", userID)
				}
				return 0.10, nil
			},
		},
	)

	result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: 1_000_000}, "tg-42")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	// Margins sum, not compound: 1 * (1 + 0.05 + 0.10 + 0.10) = 1.25.
	if result.PriceUSD != 1.25 {
		t.Errorf("PriceUSD = %v, want 1.25", result.PriceUSD)
	}
}

func TestEngine_Quote_LookupFailurePropagates(t *testing.T) {
	storeErr := errors.New("connection refused")
	engine := NewEngine(
		&MockTariffStore{
			GetTariffFunc: func(ctx context.Context, modelID string) (*domain.ModelTariff, error) {
				return nil, storeErr
			},
		},
		&MockSettingsStore{},
		&MockUserMarginStore{},
	)

	_, err := engine.Quote(context.Background(), "m", domain.Usage{}, "")
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestEngine_Quote_NegativeUsageRejected(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "m", InputPrice: fp(1.0)}
	engine := newTestEngine(tariff, 0)

	tests := []struct {
		name  string
		usage domain.Usage
	}{
		{"negative prompt tokens", domain.Usage{PromptTokens: -1}},
		{"negative output tokens", domain.Usage{OutputTokens: -100}},
		{"negative image count", domain.Usage{ImageCount: -2}},
		{"negative video seconds", domain.Usage{VideoSeconds: -0.5}},
		{"negative audio minutes", domain.Usage{AudioMinutes: -1}},
		{"NaN video seconds", domain.Usage{VideoSeconds: math.NaN()}},
		{"infinite audio minutes", domain.Usage{AudioMinutes: math.Inf(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Quote(context.Background(), "m", tt.usage, "")
			if !errors.Is(err, domain.ErrInvalidUsage) {
				t.Errorf("expected ErrInvalidUsage, got %v", err)
			}
		})
	}
}

func TestEngine_Quote_ShapeMismatchRejected(t *testing.T) {
	perSecond := &domain.ModelTariff{
		ModelID:          "veo-3",
		PriceUnit:        domain.PriceUnitPerSecond,
		OutputVideoPrice: fp(0.1),
	}
	tokenOnly := &domain.ModelTariff{ModelID: "gemini", InputPrice: fp(1.0)}

	t.Run("token usage against per-second tariff", func(t *testing.T) {
		engine := newTestEngine(perSecond, 0)
		_, err := engine.Quote(context.Background(), "veo-3", domain.Usage{PromptTokens: 100}, "")
		if !errors.Is(err, domain.ErrUsageMismatch) {
			t.Errorf("expected ErrUsageMismatch, got %v", err)
		}
	})

	t.Run("video usage against tariff with no video path", func(t *testing.T) {
		engine := newTestEngine(tokenOnly, 0)
		_, err := engine.Quote(context.Background(), "gemini", domain.Usage{VideoSeconds: 5}, "")
		if !errors.Is(err, domain.ErrUsageMismatch) {
			t.Errorf("expected ErrUsageMismatch, got %v", err)
		}
	})

	t.Run("validation disabled keeps permissive behavior", func(t *testing.T) {
		engine := newTestEngine(perSecond, 0, WithoutShapeValidation())
		result, err := engine.Quote(context.Background(), "veo-3", domain.Usage{
			PromptTokens: 100,
			VideoSeconds: 10,
		}, "")
		if err != nil {
			t.Fatalf("Quote() error = %v", err)
		}
		// Token branch does not apply to per-second tariffs; video overwrites.
		if result.CostUSD != 1 {
			t.Errorf("CostUSD = %v, want 1", result.CostUSD)
		}
	})
}

func TestEngine_Quote_Idempotent(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:          "m",
		InputPrice:       fp(1.37),
		OutputPrice:      fp(4.21),
		OutputAudioPrice: fp(0.37),
		ModelMargin:      0.07,
	}
	engine := newTestEngine(tariff, 0.03)
	usage := domain.Usage{PromptTokens: 123_457, OutputTokens: 77_001, AudioMinutes: 1.5}

	first, err := engine.Quote(context.Background(), "m", usage, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	second, err := engine.Quote(context.Background(), "m", usage, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	if *first != *second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestEngine_Quote_CostMonotonicInTokens(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:     "m",
		InputPrice:  fp(0.731),
		OutputPrice: fp(2.913),
	}
	engine := newTestEngine(tariff, 0.05)

	var prevCost, prevPrice float64
	for tokens := int64(0); tokens <= 5_000_000; tokens += 137_911 {
		result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: tokens}, "")
		if err != nil {
			t.Fatalf("Quote() error = %v", err)
		}
		if result.CostUSD < prevCost {
			t.Fatalf("cost decreased at %d tokens: %v < %v", tokens, result.CostUSD, prevCost)
		}
		if result.PriceUSD < prevPrice {
			t.Fatalf("price decreased at %d tokens: %v < %v", tokens, result.PriceUSD, prevPrice)
		}
		prevCost, prevPrice = result.CostUSD, result.PriceUSD
	}
}

func TestEngine_Quote_PriceMonotonicInMargin(t *testing.T) {
	tariff := &domain.ModelTariff{ModelID: "m", InputPrice: fp(1.0)}
	usage := domain.Usage{PromptTokens: 333_333}

	var prev float64
	for _, margin := range []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0} {
		result, err := newTestEngine(tariff, margin).Quote(context.Background(), "m", usage, "")
		if err != nil {
			t.Fatalf("Quote() error = %v", err)
		}
		if result.PriceUSD < prev {
			t.Fatalf("price decreased at margin %v: %v < %v", margin, result.PriceUSD, prev)
		}
		prev = result.PriceUSD
	}
}

func TestEngine_Quote_CeilingGuarantee(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:     "m",
		InputPrice:  fp(1.13),
		ModelMargin: 0.17,
	}
	engine := newTestEngine(tariff, 0.06)

	for tokens := int64(1); tokens < 2_000_000; tokens += 98_765 {
		result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: tokens}, "")
		if err != nil {
			t.Fatalf("Quote() error = %v", err)
		}

		cents := result.PriceUSD * 100
		if math.Abs(cents-math.Round(cents)) > 1e-9 {
			t.Errorf("price %v is not a whole number of cents", result.PriceUSD)
		}

		// The house never under-charges: allow only float noise below the
		// exact marked-up cost.
		exact := result.CostUSD * 1.23
		if result.PriceUSD < exact-1e-9 {
			t.Errorf("price %v below marked-up cost %v at %d tokens", result.PriceUSD, exact, tokens)
		}
	}
}

func TestEngine_Quote_MarginIsPriceMinusCost(t *testing.T) {
	tariff := &domain.ModelTariff{
		ModelID:     "m",
		InputPrice:  fp(1.37),
		ModelMargin: 0.11,
	}
	engine := newTestEngine(tariff, 0.04)

	result, err := engine.Quote(context.Background(), "m", domain.Usage{PromptTokens: 654_321}, "")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	want := math.Round((result.PriceUSD-result.CostUSD)*1e6) / 1e6
	if result.Margin != want {
		t.Errorf("Margin = %v, want %v", result.Margin, want)
	}
}
