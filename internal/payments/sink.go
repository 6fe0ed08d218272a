package payments

import (
	"context"
	"log/slog"
)

// LogSink records accepted notifications in the service log. It is the
// default sink until a consumer reconciles payments against appointments.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) HandleNotification(ctx context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "payment notification accepted",
		"notification_id", n.ID,
		"type", n.Type,
		"action", n.Action,
		"resource_id", n.ResourceID,
		"live_mode", n.LiveMode,
	)
	return nil
}
