package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/hall-allocation/internal/application"
)

var sample = application.Notification{
	StudentID:  "S1",
	Kind:       application.NotificationAllocated,
	Payload:    map[string]string{"block": "A", "room_number": "101", "bed": "2"},
	OccurredAt: time.Date(2024, time.August, 1, 9, 0, 0, 0, time.UTC),
}

func TestRedisStreamNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })

	notifier := NewRedisStreamNotifier(client, "hall:notifications", WithMaxLen(100))
	ctx := context.Background()
	require.NoError(t, notifier.Ping(ctx))
	require.NoError(t, notifier.Notify(ctx, sample))

	entries, err := client.XRange(ctx, "hall:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "S1", values["student_id"])
	assert.Equal(t, "allocation.allocated", values["kind"])
	assert.Equal(t, "2024-08-01T09:00:00Z", values["occurred_at"])

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &payload))
	assert.Equal(t, sample.Payload, payload)
}

func TestRedisStreamNotifierReportsConnectionFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	notifier := NewRedisStreamNotifier(client, "hall:notifications")
	err := notifier.Notify(context.Background(), sample)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hall:notifications")
}

func TestWebhookNotifier(t *testing.T) {
	t.Run("posts the notification as JSON", func(t *testing.T) {
		var received webhookMessage
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/hooks/hall", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(server.Close)

		notifier := NewWebhookNotifier(server.URL+"/hooks/hall", time.Second, 0)
		require.NoError(t, notifier.Notify(context.Background(), sample))

		assert.Equal(t, "S1", received.StudentID)
		assert.Equal(t, "allocation.allocated", received.Kind)
		assert.Equal(t, sample.Payload, received.Payload)
		assert.True(t, sample.OccurredAt.Equal(received.OccurredAt))
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		t.Cleanup(server.Close)

		notifier := NewWebhookNotifier(server.URL, time.Second, 3)
		require.NoError(t, notifier.Notify(context.Background(), sample))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("reports client errors without retrying", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		t.Cleanup(server.Close)

		notifier := NewWebhookNotifier(server.URL, time.Second, 3)
		err := notifier.Notify(context.Background(), sample)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "400")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, notifier.Notify(context.Background(), sample))

	out := buf.String()
	for _, want := range []string{"component=notifier", "student_id=S1", "kind=allocation.allocated", "payload.room_number=101"} {
		assert.True(t, strings.Contains(out, want), "expected %q in %q", want, out)
	}
}

func TestNotifiersSatisfyApplicationNotifier(t *testing.T) {
	var _ application.Notifier = (*RedisStreamNotifier)(nil)
	var _ application.Notifier = (*WebhookNotifier)(nil)
	var _ application.Notifier = (*LogNotifier)(nil)
}
