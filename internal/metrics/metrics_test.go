package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordQuote(t *testing.T) {
	// Reset metrics for test isolation
	QuotesTotal.Reset()
	QuoteDuration.Reset()

	RecordQuote("bot", "gemini-2.5-flash", "success", 0.002)

	count := testutil.ToFloat64(QuotesTotal.WithLabelValues("bot", "gemini-2.5-flash", "success"))
	if count != 1 {
		t.Errorf("QuotesTotal = %v, want 1", count)
	}
}

func TestRecordQuoteAmounts(t *testing.T) {
	CostTotal.Reset()
	PriceTotal.Reset()
	MarginTotal.Reset()

	RecordQuoteAmounts("veo-3", 1.0, 1.25, 0.25)
	RecordQuoteAmounts("veo-3", 0.5, 0.75, 0.25)

	cost := testutil.ToFloat64(CostTotal.WithLabelValues("veo-3"))
	if cost != 1.5 {
		t.Errorf("CostTotal = %v, want 1.5", cost)
	}

	price := testutil.ToFloat64(PriceTotal.WithLabelValues("veo-3"))
	if price != 2.0 {
		t.Errorf("PriceTotal = %v, want 2.0", price)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	RateLimitHits.Reset()

	RecordRateLimitHit("bot")
	RecordRateLimitHit("bot")

	hits := testutil.ToFloat64(RateLimitHits.WithLabelValues("bot"))
	if hits != 2 {
		t.Errorf("RateLimitHits = %v, want 2", hits)
	}
}

func TestRecordSpendAlert(t *testing.T) {
	SpendAlerts.Reset()

	RecordSpendAlert("warning")

	alerts := testutil.ToFloat64(SpendAlerts.WithLabelValues("warning"))
	if alerts != 1 {
		t.Errorf("SpendAlerts = %v, want 1", alerts)
	}
}
