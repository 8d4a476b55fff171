package testutils

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that writes nothing.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
