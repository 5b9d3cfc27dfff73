package errors

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/coreezy/sloth-race-watcher/common/logging"
)

var logger logging.Logger

// Initialize initializes error reporter.
func Initialize(l logging.Logger) {
	logger = l
}

// Catch is used for logging panic call stack. Catch should be called with defer.
func Catch() {
	if recovered := recover(); recovered != nil {
		report(logger, recovered)
	}
}

// CatchWithLogger is a panic handler expected to be deferred in goroutines; unlike Catch
// it logs at error level and lets the process continue.
func CatchWithLogger(l logging.Logger) {
	if recovered := recover(); recovered != nil {
		format := "%v\n[Stack Trace]\n%s"
		stack := debug.Stack()
		if l != nil {
			l.Error(format, recovered, stack)
		} else {
			fmt.Fprintf(os.Stderr, format, recovered, stack)
		}
	}
}

func report(l logging.Logger, recovered interface{}) {
	if l == nil {
		fmt.Fprintf(os.Stderr, "%v\n%s", recovered, debug.Stack())
		os.Exit(1)
	}
	l.Critical("%v\n%s", recovered, string(debug.Stack()))
}
