// Package logger sets up the kernel's zerolog logger.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Setup returns a zerolog.Logger configured from a level string ("debug",
// "info", "warn", "error"); unrecognized levels fall back to "info".
func Setup(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var writer io.Writer = os.Stderr
	if isatty(os.Stderr) {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger()
}

func isatty(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
