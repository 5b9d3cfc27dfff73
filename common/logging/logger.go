package logging

import (
	"fmt"
	"os"
	"sync"
)

// Logger defines the logger interface.
type Logger interface {
	// CloneLogger returns a logger sharing outputs but owning a copy of the labels.
	CloneLogger() Logger
	// WithLabel returns a clone with one extra label.
	WithLabel(label, value string) Logger
	SetLabel(label string, value string)
	AppendOutput(output)

	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Notice(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Critical(format string, args ...interface{})
}

// assertLoggerInterface
func _() {
	var _ Logger = (*logger)(nil)
}

type logger struct {
	sync.RWMutex

	labelMap       labelMap
	thresholdLevel level
	output         output
}

// NewLogger returns a new logger without a tag.
func NewLogger() Logger {
	return NewLoggerTag("")
}

// NewLoggerTag returns a new logger writing to the default outputs.
func NewLoggerTag(tag string) Logger {
	return newLogger(tag, defaultThresholdLevel(), nil)
}

// newLogger builds a logger with explicit threshold and output; nil output means the
// process-wide default outputs.
func newLogger(tag string, threshold level, o output) *logger {
	if !threshold.IsValid() {
		panic(fmt.Sprintf("invalid log threshold level (%d, %d), [%d]",
			firstLevel, lastLevel, threshold))
	}
	return &logger{
		labelMap:       labelMap{LabelTag: tag},
		thresholdLevel: threshold,
		output:         o,
	}
}

// CloneLogger returns a cloned logger.
func (l *logger) CloneLogger() Logger {
	l.RLock()
	defer l.RUnlock()
	return &logger{
		labelMap:       l.labelMap.clone(),
		thresholdLevel: l.thresholdLevel,
		output:         l.output,
	}
}

// WithLabel returns a cloned logger with label set.
func (l *logger) WithLabel(label, value string) Logger {
	c := l.CloneLogger()
	c.SetLabel(label, value)
	return c
}

// SetLabel sets a label in place.
func (l *logger) SetLabel(label string, value string) {
	l.Lock()
	defer l.Unlock()
	l.labelMap[label] = value
}

// AppendOutput appends an output.
func (l *logger) AppendOutput(o output) {
	l.Lock()
	defer l.Unlock()
	l.output = newMultiOutput(l.currentOutput(), o)
}

func (l *logger) currentOutput() output {
	if l.output == nil {
		return defaultOutput()
	}
	return l.output
}

func (l *logger) Debug(format string, args ...interface{}) {
	l.print(3, debugLevel, format, args...)
}

func (l *logger) Info(format string, args ...interface{}) {
	l.print(3, infoLevel, format, args...)
}

func (l *logger) Notice(format string, args ...interface{}) {
	l.print(3, noticeLevel, format, args...)
}

func (l *logger) Warn(format string, args ...interface{}) {
	l.print(3, warnLevel, format, args...)
}

func (l *logger) Error(format string, args ...interface{}) {
	l.print(3, errorLevel, format, args...)
}

// Critical logs, flushes every output and exits the process.
func (l *logger) Critical(format string, args ...interface{}) {
	l.print(3, criticalLevel, format, args...)
}

func (l *logger) print(numStackFrame int, lv level, format string, args ...interface{}) {
	defer func() {
		if lv <= criticalLevel {
			Finalize()
			exit(1)
		}
	}()
	if lv > l.thresholdLevel {
		return
	}
	l.RLock()
	m := l.labelMap.clone()
	o := l.currentOutput()
	l.RUnlock()

	m["pod"] = hostName
	if m[LabelTag] == "" {
		m[LabelTag] = hostName
	}
	if lv <= errorLevel {
		m.addDebugInfo(numStackFrame)
	}
	o.output(lv, m, fmt.Sprintf(format, args...)+"\n")
}

// exit is swapped by tests.
var exit = os.Exit
