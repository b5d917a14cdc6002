package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/hall-allocation/internal/application"
)

// WebhookNotifier POSTs each notification as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	client *resty.Client
	path   string
}

type webhookMessage struct {
	StudentID  string            `json:"student_id"`
	Kind       string            `json:"kind"`
	Payload    map[string]string `json:"payload"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewWebhookNotifier targets url. Transport failures and 5xx responses are
// retried up to retries times.
func NewWebhookNotifier(url string, timeout time.Duration, retries int) *WebhookNotifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= 500)
		})

	return &WebhookNotifier{client: client, path: url}
}

// Notify implements application.Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, notification application.Notification) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("webhook notifier not configured")
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(webhookMessage{
			StudentID:  notification.StudentID,
			Kind:       string(notification.Kind),
			Payload:    notification.Payload,
			OccurredAt: notification.OccurredAt.UTC(),
		}).
		Post(n.path)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post notification: unexpected status %d", resp.StatusCode())
	}
	return nil
}
