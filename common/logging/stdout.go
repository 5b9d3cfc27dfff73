package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ttacon/chalk"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coreezy/sloth-race-watcher/cache/cacher"
	"github.com/coreezy/sloth-race-watcher/env"
)

// TimeFormat is the timestamp layout of text outputs.
const TimeFormat = "2006-01-02 15:04:05.000"

var (
	styleMap = map[level]chalk.Style{
		debugLevel:    chalk.ResetColor.NewStyle(),
		infoLevel:     chalk.Green.NewStyle(),
		noticeLevel:   chalk.Cyan.NewStyle(),
		warnLevel:     chalk.Yellow.NewStyle(),
		errorLevel:    chalk.Red.NewStyle(),
		criticalLevel: chalk.Magenta.NewStyle(),
	}

	timeStyle = chalk.ResetColor.NewStyle().WithTextStyle(chalk.Inverse)
	tagStyle  = chalk.ResetColor.NewStyle().WithBackground(chalk.Blue)

	stdout = cacher.NewConst(func() *textOutput {
		return newTextOutput(os.Stdout, !env.IsCI())
	})

	fileOut = cacher.NewConst(func() *textOutput {
		return newTextOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 7,
			MaxAge:     30, // days
			Compress:   true,
		}, false)
	})
)

// Stdout returns the stdout output.
func Stdout() output {
	return stdout.Get()
}

// File returns the rotating file output.
func File() output {
	return fileOut.Get()
}

// textOutput writes one formatted line per entry to a writer.
type textOutput struct {
	mu        sync.Mutex
	writer    io.Writer
	withColor bool
}

// assertOutputInterface
func _() {
	var _ output = (*textOutput)(nil)
}

func newTextOutput(w io.Writer, withColor bool) *textOutput {
	return &textOutput{writer: w, withColor: withColor}
}

func (o *textOutput) output(level level, labelMap labelMap, log string) {
	ts := time.Now().Format(TimeFormat)
	sv := fmt.Sprintf("%6s", level.String())
	tag := fmt.Sprintf("%16s", labelMap[LabelTag])
	if level <= errorLevel {
		log = fmt.Sprintf("%s: %s", labelMap.debugInfo(o.withColor), log)
	}

	var line string
	if o.withColor {
		line = fmt.Sprintf("%s %s %s %s",
			timeStyle.Style(ts), styleMap[level].Style(sv), tagStyle.Style(tag), log)
	} else {
		line = fmt.Sprintf("%s %s %s %s", ts, sv, tag, removeColor(log))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = io.WriteString(o.writer, line)
}

func (o *textOutput) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.writer.(io.Closer); ok && o.writer != os.Stdout {
		_ = c.Close()
	}
}
