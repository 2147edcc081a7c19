// Package monitoring holds the process-wide logger used by binaries and the
// storage layer. Library packages with per-stream output keep their own
// loggers.
package monitoring

import (
	"io"
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger or SetWriter. Tests can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetWriter sends Logf output to w with the given prefix. A nil writer mutes
// the logger.
func SetWriter(w io.Writer, prefix string) {
	if w == nil {
		SetLogger(nil)
		return
	}
	SetLogger(log.New(w, prefix, log.LstdFlags|log.Lmicroseconds).Printf)
}

// Timed logs the start of a stage and returns a func that logs its
// duration. Use as defer monitoring.Timed("survey")().
func Timed(stage string) func() {
	start := time.Now()
	Logf("%s: started", stage)
	return func() {
		Logf("%s: done in %s", stage, time.Since(start).Round(time.Millisecond))
	}
}
