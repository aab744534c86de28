package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the application logger used by interactive commands.
// It writes text to Stderr so Stdout stays free for command output and the
// MCP stdio transport. The "error" key is renamed to "err".
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOptions(level)))
}

// NewJSON creates a JSON logger on Stderr for long running servers.
func NewJSON(level slog.Level) *slog.Logger {
	return NewJSONWriter(os.Stderr, level)
}

// NewJSONWriter is NewJSON writing to w.
func NewJSONWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, handlerOptions(level)))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
}
