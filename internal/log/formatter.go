package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	defaultPattern = "%time [%level] %field %msg\n"
	defaultTime    = "2006-01-02 15:04:05.000"

	adapterPrefix = "firestige.xyz/echoscan/internal/log.(*logrusAdapter)."
)

type formatter struct {
	pattern string
	time    string
}

func newFormatter(pattern, time string) *formatter {
	if pattern == "" {
		pattern = defaultPattern
	}
	if time == "" {
		time = defaultTime
	}
	return &formatter{pattern: pattern, time: time}
}

// Format supports a pattern with %time, %level, %field, %msg and %caller.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	output = strings.Replace(output, "%caller", getCaller(entry), 1)
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

// getCaller returns package/file:line when the logger reports callers.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	caller := *entry.Caller
	// logrus stops at the adapter; report whoever called it
	if strings.HasPrefix(caller.Function, adapterPrefix) {
		if f, ok := adapterCaller(); ok {
			caller = f
		}
	}
	file := caller.File
	if i := strings.LastIndex(file, "/"); i != -1 && i+1 < len(file) {
		file = file[i+1:]
	}
	pkg := ""
	if fn := caller.Function; fn != "" {
		base := fn[strings.LastIndex(fn, "/")+1:]
		if dot := strings.Index(base, "."); dot != -1 {
			pkg = base[:dot]
		}
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, caller.Line)
}

// adapterCaller returns the first frame above the logrusAdapter methods on
// the current stack.
func adapterCaller() (runtime.Frame, bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	inAdapter := false
	for {
		f, more := frames.Next()
		if strings.HasPrefix(f.Function, adapterPrefix) {
			inAdapter = true
		} else if inAdapter {
			return f, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// buildFields renders entry fields as sorted key=value pairs.
func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
