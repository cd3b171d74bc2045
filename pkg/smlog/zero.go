package smlog

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var Zero = NewZeroLogger("", "info", false)

var logFile *os.File

// NewZeroLogger creates a zerolog logger writing to filepath (stdout when empty).
// Output is JSON unless pretty is set, in which case a console writer is used.
func NewZeroLogger(filepath string, level string, pretty bool) *zerolog.Logger {
	file, writer, err := newWriter(filepath)
	if err != nil {
		writer = os.Stdout
	}
	if file != nil {
		logFile = file
	}

	var output io.Writer = writer
	if pretty {
		output = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(output).With().Timestamp().Logger().Level(parseLevel(level))
	return &logger
}

// UpdateZeroLogLevel changes the level of the global logger, keeping its output.
func UpdateZeroLogLevel(logLevel string) error {
	zeroLogger := Zero.With().Logger().Level(parseLevel(logLevel))
	Zero = &zeroLogger
	return nil
}

// ReloadLogger reopens the log file. It is called on SIGHUP so that
// rotated files are picked up.
func ReloadLogger(filepath string, level string, pretty bool) {
	if filepath == "" {
		return // stdout, nothing to reopen
	}
	oldFile := logFile
	Zero = NewZeroLogger(filepath, level, pretty)
	if oldFile != nil && oldFile != logFile {
		_ = oldFile.Close()
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "disabled":
		return zerolog.Disabled
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
