// Package logging builds the application logger: timestamped lines appended
// to a log file, with warnings and errors echoed to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name.
const Name = "admanager"

// Options configures New.
type Options struct {
	// File is appended to; created if missing. Empty disables the file.
	File string
	// Level is an hclog level name (trace, debug, info, warn, error).
	Level string
	// Console receives warn+ lines. Nil disables it.
	Console io.Writer
}

// Logger is the application logger and the file it writes to.
type Logger struct {
	hclog.InterceptLogger
	file *os.File
}

// New opens the log file and returns the logger.
func New(opts Options) (*Logger, error) {
	level := hclog.Info
	if opts.Level != "" {
		level = hclog.LevelFromString(opts.Level)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("unknown log level %q", opts.Level)
		}
	}

	var out io.Writer = io.Discard
	var file *os.File
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, file = f, f
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       Name,
		Level:      level,
		Output:     out,
		TimeFormat: "2006-01-02 15:04:05",
	})

	if opts.Console != nil {
		console := &hclog.LoggerOptions{
			Name:   Name,
			Level:  hclog.Warn,
			Output: opts.Console,
		}
		// hclog only colorizes file writers.
		if _, ok := opts.Console.(*os.File); ok {
			console.Color = hclog.AutoColor
		}
		logger.RegisterSink(hclog.NewSinkAdapter(console))
	}

	return &Logger{InterceptLogger: logger, file: file}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
