package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the logging capability injected into every bridge component.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

type Options struct {
	Level  string
	Format string // "console" or "json"
	Output string // "stderr", "stdout", "logcat" or a file path
	Tag    string
}

// ParseLevel maps a config level name to a zerolog level. Unknown names
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// New builds a zerolog-backed logger from opts. The returned closer must be
// closed when the output is a file.
func New(opts Options) (*ZerologAdapter, io.Closer, error) {
	writer, closer, err := openOutput(opts)
	if err != nil {
		return nil, nil, err
	}

	if opts.Format != "json" && opts.Output != "logcat" {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}

	return NewZerolog(writer, ParseLevel(opts.Level)), closer, nil
}

func openOutput(opts Options) (io.Writer, io.Closer, error) {
	switch opts.Output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	case "logcat":
		w := newPlatformSink(opts.Tag)
		return w, nopCloser{}, nil
	default:
		f, err := os.OpenFile(opts.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %s: %w", opts.Output, err)
		}
		return f, f, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
