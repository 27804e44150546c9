package notifications

import (
	"context"
	"log/slog"
)

type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

// UserChanged logs the change by id only; addresses stay out of the logs.
func (n *LogNotifier) UserChanged(ctx context.Context, ev UserChanged) error {
	n.log.InfoContext(ctx, "notification.user_changed",
		"type", string(ev.Type),
		"user_id", ev.ID,
	)
	return nil
}
