// Package ledger records every priced quote so downstream billing and the
// admin margin report can be derived from one source of truth.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/bananabot/pricing/internal/domain"
)

// Tracker persists quote records and answers per-user aggregates.
type Tracker interface {
	Record(ctx context.Context, record domain.QuoteRecord) error
	GetUserQuotes(ctx context.Context, userID string, since time.Time) ([]domain.QuoteRecord, error)
	GetUserTotalPrice(ctx context.Context, userID string, since time.Time) (float64, error)
	GetTotalMargin(ctx context.Context, since time.Time) (float64, error)
}

type InMemoryTracker struct {
	mu      sync.RWMutex
	records []domain.QuoteRecord
}

func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{
		records: make([]domain.QuoteRecord, 0),
	}
}

func (t *InMemoryTracker) Record(ctx context.Context, record domain.QuoteRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)
	return nil
}

func (t *InMemoryTracker) GetUserQuotes(ctx context.Context, userID string, since time.Time) ([]domain.QuoteRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []domain.QuoteRecord
	for _, r := range t.records {
		if r.UserID == userID && r.CreatedAt.After(since) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (t *InMemoryTracker) GetUserTotalPrice(ctx context.Context, userID string, since time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, r := range t.records {
		if r.UserID == userID && r.CreatedAt.After(since) {
			total += r.PriceUSD
		}
	}
	return total, nil
}

func (t *InMemoryTracker) GetTotalMargin(ctx context.Context, since time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, r := range t.records {
		if r.CreatedAt.After(since) {
			total += r.MarginUSD
		}
	}
	return total, nil
}

func (t *InMemoryTracker) GetAllRecords() []domain.QuoteRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]domain.QuoteRecord, len(t.records))
	copy(result, t.records)
	return result
}
