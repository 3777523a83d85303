// Package rlog centralizes the logging setup shared by planetsplitter,
// router, and filedumper: all three wrap github.com/hauke96/sigolo/v2
// so build progress and routing diagnostics share one format whether
// run interactively or with --loggable redirected to a file.
package rlog

import (
	"github.com/hauke96/sigolo/v2"
)

var verbose bool

// Setup records the --verbose flag shared by all three commands. The
// sigolo calls below already default to a sensible level; verbose only
// gates the extra Debug-level progress calls this package makes.
func Setup(v bool) {
	verbose = v
}

// Info logs a one-line status message.
func Info(format string, args ...any) {
	sigolo.Infof(format, args...)
}

// Debug logs a one-line diagnostic message, only when --verbose was set.
func Debug(format string, args ...any) {
	if verbose {
		sigolo.Debugf(format, args...)
	}
}

// Error logs a non-fatal error.
func Error(err error) {
	sigolo.Errorf("%s", err)
}

// FatalCheck logs err and terminates the process if it is non-nil,
// matching the original tools' abort-on-first-error build behaviour.
func FatalCheck(err error) {
	sigolo.FatalCheck(err)
}
