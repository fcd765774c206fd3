//go:build !android || !cgo

package logger

import (
	"io"
	"os"
)

// newPlatformSink falls back to stderr where there is no system log.
func newPlatformSink(string) io.Writer {
	return os.Stderr
}
