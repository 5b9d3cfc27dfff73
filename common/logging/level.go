package logging

import (
	"cloud.google.com/go/logging"
	"github.com/coreezy/sloth-race-watcher/common/config"
)

// level of logger
type level int

// defaultThresholdLevel returns the default log level.
func defaultThresholdLevel() level {
	return level(config.GetInt("SERVER_LOGLEVEL", int(infoLevel)))
}

// Log / Severity Levels
const (
	firstLevel level = iota
	criticalLevel
	errorLevel
	warnLevel
	noticeLevel
	infoLevel
	debugLevel
	lastLevel
)

var levelNames = [...]string{"", " CRIT", "ERROR", " WARN", " NOTE", " INFO", "DEBUG", ""}

var levelSeverities = [...]logging.Severity{
	logging.Default,
	logging.Critical,
	logging.Error,
	logging.Warning,
	logging.Notice,
	logging.Info,
	logging.Debug,
	logging.Default,
}

// IsValid returns if the l is valid.
func (l level) IsValid() bool {
	return l < lastLevel && l > firstLevel
}

// String returns the string description of l.
func (l level) String() string {
	if l < firstLevel || l > lastLevel {
		return ""
	}
	return levelNames[l]
}

// Severity returns the cloud logging severity.
func (l level) Severity() logging.Severity {
	if l < firstLevel || l > lastLevel {
		return logging.Default
	}
	return levelSeverities[l]
}
