package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose gates per-frame diagnostic output. It is off by default because the
// frame loop can emit thousands of lines per minute.
var Verbose bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs only when Verbose is enabled.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf(format, v...)
	}
}
