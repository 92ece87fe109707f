// Package adblog wraps the standard library logger with the fixed
// "adbpush: " prefix and a debug gate, matching the teacher's plain
// log.Printf style rather than a structured logging library (spec's
// ambient stack: the teacher never reaches for zerolog/logrus).
package adblog

import (
	"log"
	"os"
)

var (
	std     = log.New(os.Stderr, "adbpush: ", log.LstdFlags)
	debugOn = false
)

// SetDebug toggles whether Debugf actually emits output.
func SetDebug(on bool) {
	debugOn = on
}

// Infof logs an informational line unconditionally.
func Infof(format string, args ...any) {
	std.Printf(format, args...)
}

// Debugf logs only when SetDebug(true) has been called; used for the
// packet- and frame-level tracing that would otherwise drown out normal
// operation (spec's ambient stack).
func Debugf(format string, args ...any) {
	if debugOn {
		std.Printf("debug: "+format, args...)
	}
}

// Errorf logs an error line unconditionally.
func Errorf(format string, args ...any) {
	std.Printf("error: "+format, args...)
}
