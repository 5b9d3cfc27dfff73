package logging

import "github.com/coreezy/sloth-race-watcher/common/config"

// Variables only are used in logging package.
var (
	logToStdout      = config.GetBool("SERVER_LOG_TO_STDOUT", true)
	logToStackdriver = config.GetBool("SERVER_LOG_TO_STACKDRIVER", false)
	logFile          = config.GetString("SERVER_LOG_FILE", "")

	hostName = config.GetString("HOSTNAME", "localhost")
	logName  string
)

// Initialize initializes the logging package.
func Initialize(logname string) {
	logName = logname
	hostName = config.GetString("HOSTNAME", "localhost")

	if !logToStackdriver {
		return
	}
	stackdriverOut.Get().refreshLogger(logName)
}

// Finalize flushes and closes every loaded output.
func Finalize() {
	if fileOut.IsLoaded() {
		fileOut.Get().close()
		fileOut.Clear()
	}
	if stackdriverOut.IsLoaded() {
		if err := stackdriverOut.Get().client.Close(); err != nil {
			panic(err)
		}
		stackdriverOut.Clear()
	}
}
