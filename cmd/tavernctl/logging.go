package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tavernkit/core/pkg/logger"
)

// setupLogging initializes the module's shared logger from the CLI's
// --log-level flag. No log file/format flags, since tavernctl is a
// short-lived smoke-test harness, not a long-running server.
func setupLogging(levelStr string) {
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tavernctl: invalid log level %q, defaulting to info\n", levelStr)
		level = slog.LevelInfo
	}
	l := logger.New(logger.Options{Level: level, Writer: os.Stderr})
	logger.SetDefault(l)
	slog.SetDefault(l)
}
