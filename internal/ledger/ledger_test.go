package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

func TestInMemoryTracker_Record(t *testing.T) {
	tracker := NewInMemoryTracker()
	ctx := context.Background()

	record := domain.QuoteRecord{
		ID:        "q1",
		CallerID:  "bot",
		UserID:    "tg-1",
		ModelID:   "gemini-2.5-flash",
		Usage:     domain.Usage{PromptTokens: 100, OutputTokens: 50},
		CostUSD:   0.01,
		PriceUSD:  0.02,
		MarginUSD: 0.01,
		CreatedAt: time.Now(),
	}

	if err := tracker.Record(ctx, record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := tracker.GetAllRecords()
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestInMemoryTracker_GetUserTotalPrice(t *testing.T) {
	tracker := NewInMemoryTracker()
	ctx := context.Background()
	now := time.Now()

	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-1", PriceUSD: 0.10, CreatedAt: now})
	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-1", PriceUSD: 0.20, CreatedAt: now})
	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-2", PriceUSD: 0.50, CreatedAt: now})

	total, err := tracker.GetUserTotalPrice(ctx, "tg-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if total < 0.29 || total > 0.31 {
		t.Errorf("expected ~0.30, got %f", total)
	}
}

func TestInMemoryTracker_GetTotalMargin(t *testing.T) {
	tracker := NewInMemoryTracker()
	ctx := context.Background()
	now := time.Now()

	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-1", MarginUSD: 0.05, CreatedAt: now})
	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-2", MarginUSD: 0.15, CreatedAt: now})
	tracker.Record(ctx, domain.QuoteRecord{UserID: "tg-3", MarginUSD: 1.00, CreatedAt: now.Add(-48 * time.Hour)})

	total, err := tracker.GetTotalMargin(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if total < 0.19 || total > 0.21 {
		t.Errorf("expected ~0.20, got %f", total)
	}
}

func TestInMemoryTracker_GetUserQuotes_FiltersByTime(t *testing.T) {
	tracker := NewInMemoryTracker()
	ctx := context.Background()
	now := time.Now()

	tracker.Record(ctx, domain.QuoteRecord{ID: "old", UserID: "tg-1", CreatedAt: now.Add(-2 * time.Hour)})
	tracker.Record(ctx, domain.QuoteRecord{ID: "new", UserID: "tg-1", CreatedAt: now})

	quotes, err := tracker.GetUserQuotes(ctx, "tg-1", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(quotes) != 1 || quotes[0].ID != "new" {
		t.Errorf("expected only the recent quote, got %+v", quotes)
	}
}
