package logging

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures size based rotation of the log file
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingWriter returns a writer that appends to opts.Path and rotates it
// once it grows past MaxSizeMB. Log lines are mirrored to stdout so container
// log collectors keep working.
func NewRotatingWriter(opts FileOptions) io.Writer {
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	return io.MultiWriter(os.Stdout, file)
}

// Setup initializes the global logger from string settings. When path is
// empty logs go to stdout only.
func Setup(level, format string, file FileOptions) *Logger {
	if file.Path == "" {
		InitGlobalLogger(ParseLogLevel(level), ParseLogFormat(format))
	} else {
		InitGlobalLoggerWithOutput(ParseLogLevel(level), ParseLogFormat(format), NewRotatingWriter(file))
	}
	return GetGlobalLogger()
}
