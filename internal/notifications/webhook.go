package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bananabot/pricing/internal/httputil"
)

// WebhookNotifier posts notifications as JSON to an operator-provided URL.
type WebhookNotifier struct {
	client *http.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		client: httputil.DefaultClient(),
		url:    url,
	}
}

func NewWebhookNotifierWithClient(url string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{
		client: client,
		url:    url,
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("webhook notification sent",
		"type", notification.Type,
		"user_id", notification.UserID,
		"status", resp.StatusCode,
	)

	return nil
}

// MultiNotifier fans a notification out to every configured notifier.
// A failing notifier does not stop delivery to the others.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

func (n *MultiNotifier) Send(ctx context.Context, notification Notification) error {
	var firstErr error
	for _, notifier := range n.notifiers {
		if err := notifier.Send(ctx, notification); err != nil {
			slog.Warn("notifier failed", "type", notification.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
