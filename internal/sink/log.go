package sink

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// Log writes events as structured log records. Sensitive attributes are
// redacted by the logger's handler.
type Log struct {
	logger *slog.Logger
	closed atomic.Bool
}

// NewLog creates a sink writing to logger.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{logger: logger.With(slog.String("sink", "log"))}
}

// Name returns "log".
func (l *Log) Name() string {
	return "log"
}

// Capture logs ev at the level matching its severity.
func (l *Log) Capture(ctx context.Context, ev *event.Event) error {
	if l.closed.Load() {
		return event.NewUnavailableError(l.Name(), "closed")
	}

	attrs := []any{
		slog.String("event_id", ev.ID),
		slog.String("severity", string(ev.Level)),
	}

	if ev.Transaction != "" {
		attrs = append(attrs, slog.String("transaction", ev.Transaction))
	}

	if len(ev.Tags) > 0 {
		attrs = append(attrs, slog.Any("tags", ev.Tags))
	}

	if len(ev.Extra) > 0 {
		attrs = append(attrs, slog.Any("extra", ev.Extra))
	}

	if !ev.User.IsEmpty() {
		attrs = append(attrs, slog.String("user_id", ev.User.ID))
	}

	if len(ev.Exceptions) > 0 {
		attrs = append(attrs, slog.Any("exceptions", ev.Exceptions))
	}

	if len(ev.Breadcrumbs) > 0 {
		attrs = append(attrs, slog.Int("breadcrumbs", len(ev.Breadcrumbs)))
	}

	l.logger.Log(ctx, slogLevel(ev.Level), ev.Message, attrs...)

	return nil
}

// Flush is a no-op.
func (l *Log) Flush(context.Context) error {
	return nil
}

// Close stops accepting events.
func (l *Log) Close() error {
	l.closed.Store(true)
	return nil
}

func slogLevel(level event.Level) slog.Level {
	switch level {
	case event.LevelDebug:
		return slog.LevelDebug
	case event.LevelWarning:
		return slog.LevelWarn
	case event.LevelError, event.LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
