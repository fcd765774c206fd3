//go:build android && cgo

package logger

// #cgo LDFLAGS: -llog
// #include <stdlib.h>
// #include <android/log.h>
import "C"

import (
	"io"
	"strings"
	"unsafe"
)

type logcatWriter struct {
	tag *C.char
}

// newPlatformSink routes log lines to logcat at verbose priority.
func newPlatformSink(tag string) io.Writer {
	if tag == "" {
		tag = "NATIVE"
	}
	// tag lives for the life of the process
	return &logcatWriter{tag: C.CString(tag)}
}

func (w *logcatWriter) Write(p []byte) (int, error) {
	msg := C.CString(strings.TrimRight(string(p), "\n"))
	defer C.free(unsafe.Pointer(msg))

	C.__android_log_write(C.ANDROID_LOG_VERBOSE, w.tag, msg)
	return len(p), nil
}
