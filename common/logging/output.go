package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/coreezy/sloth-race-watcher/cache/cacher"
)

// Shared instances.
var defaultOut = cacher.NewConst(func() output {
	o := multiOutput{}
	if logToStdout {
		o = append(o, Stdout())
	}
	if logToStackdriver {
		o = append(o, Stackdriver())
	}
	if logFile != "" {
		o = append(o, File())
	}
	if len(o) == 0 {
		fmt.Println("no default logger specified")
	}
	return &o
})

// defaultOutput returns the default output.
func defaultOutput() output {
	return defaultOut.Get()
}

// output defines the log output interface.
type output interface {
	output(level level, labelMap labelMap, log string)
}

// newMultiOutput returns a multi output, flattening nested multi outputs.
func newMultiOutput(outputs ...output) output {
	o := multiOutput{}
	for _, sub := range outputs {
		if mo, ok := sub.(*multiOutput); ok {
			o = append(o, *mo...)
			continue
		}
		o = append(o, sub)
	}
	return &o
}

// multiOutput fans one entry out to several outputs.
type multiOutput []output

func (o *multiOutput) output(level level, labelMap labelMap, log string) {
	switch len(*o) {
	case 0:
		return
	case 1:
		(*o)[0].output(level, labelMap, log)
		return
	}
	var wg sync.WaitGroup
	for _, out := range *o {
		wg.Add(1)
		go func(out output) {
			defer wg.Done()
			out.output(level, labelMap, log)
		}(out)
	}
	wg.Wait()
}

// removeColor returns a new string with color code removed.
func removeColor(s string) string {
	sb := strings.Builder{}
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\033' {
			for ; i < len(s) && s[i] != 'm'; i++ {
			}
		} else {
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
