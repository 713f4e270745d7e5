package notify

import (
	"context"
	"log/slog"
)

// LogSender writes alerts to a logger. It is the sender used when no chat
// channel is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(ctx context.Context, title, message string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "alert", slog.String("title", title), slog.String("message", message))
	return nil
}

func (LogSender) Name() string {
	return "log"
}
