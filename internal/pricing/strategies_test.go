package pricing

import (
	"context"
	"testing"

	"github.com/bananabot/pricing/internal/domain"
)

func TestAccumulateCost_StrategyOrdering(t *testing.T) {
	tests := []struct {
		name     string
		tariff   domain.ModelTariff
		usage    domain.Usage
		expected float64
	}{
		{
			name: "token branch is the baseline",
			tariff: domain.ModelTariff{
				InputPrice:  fp(2.0),
				OutputPrice: fp(4.0),
			},
			usage:    domain.Usage{PromptTokens: 500_000, OutputTokens: 250_000},
			expected: 2.0,
		},
		{
			name: "credit video overwrites token baseline",
			tariff: domain.ModelTariff{
				InputPrice:       fp(2.0),
				CreditsPerSecond: fp(10),
				CreditPriceUSD:   fp(0.05),
			},
			usage:    domain.Usage{VideoSeconds: 4},
			expected: 2.0, // 4 * 10 * 0.05; the zero-token baseline is discarded
		},
		{
			name: "audio adds on top of tokens",
			tariff: domain.ModelTariff{
				InputPrice:       fp(1.0),
				OutputAudioPrice: fp(0.5),
			},
			usage:    domain.Usage{PromptTokens: 1_000_000, AudioMinutes: 2},
			expected: 2.0,
		},
		{
			name: "audio alone on per-second tariff",
			tariff: domain.ModelTariff{
				PriceUnit:        domain.PriceUnitPerSecond,
				OutputAudioPrice: fp(0.25),
			},
			usage:    domain.Usage{AudioMinutes: 4},
			expected: 1.0,
		},
		{
			name: "per-second video ignored on token tariff",
			tariff: domain.ModelTariff{
				InputPrice:       fp(1.0),
				OutputVideoPrice: fp(100),
			},
			usage:    domain.Usage{PromptTokens: 1_000_000, VideoSeconds: 30},
			expected: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := accumulateCost(&tt.tariff, tt.usage, domain.DefaultCreditPriceUSD)
			if got != tt.expected {
				t.Errorf("accumulateCost() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCeilToCents(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{0.2, 0.2},
		{0.201, 0.21},
		{1.2500000000000002, 1.25},
		{3.4499999999999997, 3.45},
		{0.001, 0.01},
		{10, 10},
	}

	for _, tt := range tests {
		if got := ceilToCents(tt.in); got != tt.expected {
			t.Errorf("ceilToCents(%v) = %v, want %v", tt.in, got, tt.expected)
		}
	}
}

func TestRoundTo6(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{0.0000004, 0},
		{0.0000005, 0.000001},
		{1.2345678, 1.234568},
		{3, 3},
	}

	for _, tt := range tests {
		if got := roundTo6(tt.in); got != tt.expected {
			t.Errorf("roundTo6(%v) = %v, want %v", tt.in, got, tt.expected)
		}
	}
}

func BenchmarkEngine_Quote(b *testing.B) {
	tariff := &domain.ModelTariff{
		ModelID:     "gemini-2.5-flash",
		InputPrice:  fp(0.3),
		OutputPrice: fp(2.5),
		ModelMargin: 0.10,
	}
	engine := newTestEngine(tariff, 0.05)
	usage := domain.Usage{PromptTokens: 12_345, OutputTokens: 6_789}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Quote(ctx, "gemini-2.5-flash", usage, ""); err != nil {
			b.Fatal(err)
		}
	}
}
