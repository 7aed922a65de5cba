package spend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bananabot/pricing/internal/domain"
	"github.com/bananabot/pricing/internal/ledger"
	"github.com/bananabot/pricing/internal/metrics"
	"github.com/bananabot/pricing/internal/notifications"
)

type AlertLevel string

const (
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
	AlertLevelExceeded AlertLevel = "exceeded"
)

type Alert struct {
	UserID     string
	Level      AlertLevel
	LimitUSD   float64
	SpendUSD   float64
	Percentage float64
	Timestamp  time.Time
}

type AlertHandler func(alert Alert)

// LimitStore reports the configured monthly spend limit for a user.
// A limit of zero (or an unknown user) means no limit is enforced.
type LimitStore interface {
	GetSpendLimit(ctx context.Context, userID string) (float64, error)
}

type Monitor struct {
	mu            sync.Mutex
	tracker       ledger.Tracker
	limits        LimitStore
	dedup         AlertDeduplicator
	alertHandlers []AlertHandler
	thresholds    Thresholds
}

type Thresholds struct {
	Warning  float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Warning:  0.8,
		Critical: 0.95,
	}
}

func NewMonitor(tracker ledger.Tracker, limits LimitStore, dedup AlertDeduplicator, thresholds Thresholds) *Monitor {
	return &Monitor{
		tracker:       tracker,
		limits:        limits,
		dedup:         dedup,
		alertHandlers: make([]AlertHandler, 0),
		thresholds:    thresholds,
	}
}

func (m *Monitor) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHandlers = append(m.alertHandlers, handler)
}

func startOfMonth() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Check compares the user's month-to-date spend against their limit and
// dispatches at most one alert per level transition.
func (m *Monitor) Check(ctx context.Context, userID string) (*Alert, error) {
	limit, err := m.limits.GetSpendLimit(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup spend limit: %w", err)
	}
	if limit <= 0 {
		return nil, nil
	}

	spend, err := m.tracker.GetUserTotalPrice(ctx, userID, startOfMonth())
	if err != nil {
		return nil, fmt.Errorf("lookup user spend: %w", err)
	}

	percentage := spend / limit

	var level AlertLevel
	switch {
	case percentage >= 1.0:
		level = AlertLevelExceeded
	case percentage >= m.thresholds.Critical:
		level = AlertLevelCritical
	case percentage >= m.thresholds.Warning:
		level = AlertLevelWarning
	default:
		m.dedup.ClearAlert(ctx, userID)
		return nil, nil
	}

	if !m.dedup.ShouldAlert(ctx, userID, level) {
		return nil, nil
	}

	metrics.RecordSpendAlert(string(level))

	alert := &Alert{
		UserID:     userID,
		Level:      level,
		LimitUSD:   limit,
		SpendUSD:   spend,
		Percentage: percentage * 100,
		Timestamp:  time.Now(),
	}

	m.mu.Lock()
	handlers := make([]AlertHandler, len(m.alertHandlers))
	copy(handlers, m.alertHandlers)
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(*alert)
	}

	return alert, nil
}

// IsLimitExceeded reports whether the user's month-to-date spend has
// reached their limit. Users without a configured limit are never blocked.
func (m *Monitor) IsLimitExceeded(ctx context.Context, userID string) (bool, error) {
	limit, err := m.limits.GetSpendLimit(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup spend limit: %w", err)
	}
	if limit <= 0 {
		return false, nil
	}

	spend, err := m.tracker.GetUserTotalPrice(ctx, userID, startOfMonth())
	if err != nil {
		return false, fmt.Errorf("lookup user spend: %w", err)
	}

	return spend >= limit, nil
}

func LogAlertHandler(alert Alert) {
	slog.Warn("spend alert",
		"user_id", alert.UserID,
		"level", alert.Level,
		"limit_usd", alert.LimitUSD,
		"spend_usd", alert.SpendUSD,
		"percentage", alert.Percentage,
	)
}

// NotifierAlertHandler forwards spend alerts to a notifier.
func NotifierAlertHandler(notifier notifications.Notifier) AlertHandler {
	return func(alert Alert) {
		typ := notifications.NotificationSpendWarning
		switch alert.Level {
		case AlertLevelCritical:
			typ = notifications.NotificationSpendCritical
		case AlertLevelExceeded:
			typ = notifications.NotificationSpendExceeded
		}

		notification := notifications.Notification{
			Type:    typ,
			UserID:  alert.UserID,
			Message: fmt.Sprintf("user %s spend at %.1f%% of limit", alert.UserID, alert.Percentage),
			Data: map[string]interface{}{
				"spend_usd": alert.SpendUSD,
				"limit_usd": alert.LimitUSD,
			},
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := notifier.Send(ctx, notification); err != nil {
			slog.Error("failed to send spend alert", "user_id", alert.UserID, "error", err)
		}
	}
}
