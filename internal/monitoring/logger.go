// Package monitoring holds the verifier's diagnostic output hooks.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests and quiet runs redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Infof logs a phase start or progress note.
func Infof(format string, v ...interface{}) {
	Logf("[Info] "+format, v...)
}

// Successf logs the counts reported at the end of a phase.
func Successf(format string, v ...interface{}) {
	Logf("[Success] "+format, v...)
}

// Progress is called with the number of completed and total units of work
// in a long-running phase. Implementations must be safe for concurrent use.
type Progress func(done, total int)

// NopProgress discards progress updates.
func NopProgress(int, int) {}
