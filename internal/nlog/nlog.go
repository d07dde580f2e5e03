// Package nlog is this service's structured logger: severity-leveled,
// depth-aware, buffered, with an explicit Flush for callers that want to
// guarantee output before process exit. Modeled on cmn/nlog (same call
// surface: Infoln/Infof, Warningln/Warningf, Errorln/Errorf, *Depth
// variants, Flush), with a far simpler buffering strategy — no file
// rotation, since this service logs to stderr/a single sink only.
package nlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

func (s severity) tag() byte {
	switch s {
	case sevWarn:
		return 'W'
	case sevErr:
		return 'E'
	default:
		return 'I'
	}
}

var (
	mu  sync.Mutex
	out = bufio.NewWriter(os.Stderr)
)

// SetOutput redirects the logger; intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = bufio.NewWriter(w)
}

func Flush() {
	mu.Lock()
	defer mu.Unlock()
	out.Flush()
}

func log(sev severity, depth int, format string, args ...any) {
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...) + "\n"
	}
	_, file, line, ok := runtime.Caller(depth + 2)
	if !ok {
		file, line = "???", 0
	} else {
		for i := len(file) - 1; i >= 0; i-- {
			if file[i] == '/' {
				file = file[i+1:]
				break
			}
		}
	}
	now := time.Now()
	mu.Lock()
	fmt.Fprintf(out, "%c%s %s:%d] %s", sev.tag(), now.Format("0102 15:04:05.000000"), file, line, msg)
	if sev >= sevWarn {
		out.Flush()
	}
	mu.Unlock()
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }
