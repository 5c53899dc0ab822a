package audit

import (
	"context"
	"log/slog"
	"time"
)

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "audit")}
}

func (s *LogSink) Append(ctx context.Context, event Event) error {
	level := slog.LevelInfo
	if event.Severity == SeverityWarning || event.Severity == SeverityCritical {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "audit event",
		"category", string(event.Category),
		"action", event.Action,
		"timestamp", event.Timestamp.Format(time.RFC3339Nano),
		"owner", event.Owner(),
		"subject", event.Subject,
		"decision", event.Decision,
		"categories", event.Categories,
		"ip", event.IP,
		"browser", event.Browser,
		"os", event.OS,
		"bot", event.Bot,
		"request_id", event.RequestID,
	)
	return nil
}
