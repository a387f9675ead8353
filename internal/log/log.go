// Package log provides the process-wide zerolog logger for zodbcodec's CLI.
package log

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Other packages should use
// log.Logger with additional context fields rather than importing zerolog
// directly.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}
