package notify

import (
	"context"
	"log/slog"

	"github.com/example/hall-allocation/internal/application"
)

// LogNotifier writes notifications to a structured log. It is the default
// backend when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier logs through logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Notify implements application.Notifier.
func (n *LogNotifier) Notify(ctx context.Context, notification application.Notification) error {
	attrs := []any{
		"student_id", notification.StudentID,
		"kind", string(notification.Kind),
		"occurred_at", notification.OccurredAt,
	}
	for key, value := range notification.Payload {
		attrs = append(attrs, slog.String("payload."+key, value))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}
