package notify

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/tokenauth"
)

// Log writes messages to a logger instead of sending them. Links in the text
// body end up in the log, which is the point in development.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log notifier. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Send implements tokenauth.Notifier.
func (l *Log) Send(ctx context.Context, msg tokenauth.Message) error {
	l.logger.InfoContext(ctx, "email",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
