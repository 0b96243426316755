package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// cliLogger is a terse, human-readable console logger for the CLI's own
// startup/shutdown lines, separate from the library's slog-based internal
// logging (internal/log). Think of it as what a user watches scroll by
// when they run visimatchd from a terminal, versus what ends up in the
// library's structured log stream.
var cliLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
	With().Timestamp().Logger()
