package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ttacon/chalk"
)

// labelMap are log labels.
type labelMap map[string]string

// LabelTag Enumeration of Label.
const (
	LabelTag = "tag"
)

const (
	labelProcessID   = "pid"
	labelGoroutineID = "go_id"
	labelFuncName    = "func_name"
	labelFileName    = "file_name"
	labelLineNumber  = "line_number"
)

var (
	funcNameStyle = chalk.Cyan.NewStyle()
	fileStyle     = chalk.Magenta.NewStyle()
	lineStyle     = chalk.Yellow.NewStyle()
)

func (l labelMap) clone() labelMap {
	m := make(labelMap, len(l))
	for k, v := range l {
		m[k] = v
	}
	return m
}

// addDebugInfo records the caller numStackFrame frames up.
func (l labelMap) addDebugInfo(numStackFrame int) {
	l[labelProcessID] = fmt.Sprintf("%d", os.Getpid())

	buffer := make([]byte, 64)
	buffer = buffer[:runtime.Stack(buffer, false)]
	goroutineID := "-1"
	if fields := bytes.Fields(buffer); len(fields) >= 2 {
		goroutineID = string(fields[1])
	}
	l[labelGoroutineID] = goroutineID

	funcName := "???"
	pc, file, line, ok := runtime.Caller(numStackFrame)
	if !ok {
		file = "???"
		line = -1
	} else {
		funcName = runtime.FuncForPC(pc).Name()
		file = filepath.Base(file)
	}
	l[labelFuncName] = funcName + "()"
	l[labelFileName] = file
	l[labelLineNumber] = fmt.Sprintf("%d", line)
}

func (l labelMap) debugInfo(styled bool) string {
	funcName, file, line := l[labelFuncName], l[labelFileName], l[labelLineNumber]
	if styled {
		funcName = funcNameStyle.Style(funcName)
		file = fileStyle.Style(file)
		line = lineStyle.Style(line)
	}
	return fmt.Sprintf("PID_%s:GoID_%s:%s:%s:%s",
		l[labelProcessID], l[labelGoroutineID], funcName, file, line)
}
