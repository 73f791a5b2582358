// Package monitoring provides the diagnostic logging used by the render
// workers and the plotter.
package monitoring

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger or redirected to a host log sink by Init.
// Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var (
	sinkMu    sync.Mutex
	sink      io.Writer
	startTime float64
)

// Init redirects Logf to w using the relative-timestamp line format the
// host's log reader expects. start is the host's epoch in seconds (as
// reported by its own clock) so that relative offsets line up across the
// language boundary. Passing a nil writer leaves Logf unchanged.
func Init(start float64, w io.Writer) {
	if w == nil {
		return
	}
	sinkMu.Lock()
	sink = w
	startTime = start
	sinkMu.Unlock()
	Logf = sinkLogf
}

func sinkLogf(format string, v ...interface{}) {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file, line = "???", 0
	}
	now := time.Now()
	t := float64(now.UnixNano()) / 1e9
	rel := t - startTime
	// Wrap the relative clock at 100 s so the column stays narrow during
	// long sessions, same as the host-side logger.
	wrapped := (rel/100 - float64(int64(rel/100))) * 100

	msg := fmt.Sprintf(format, v...)
	if n := len(msg); n == 0 || msg[n-1] != '\n' {
		msg += "\n"
	}
	lineStr := fmt.Sprintf(">%s.%06d %9.6f %s:%d %s",
		now.Format("15:04:05"), now.Nanosecond()/1000,
		wrapped, filepath.Base(file), line, msg)

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink != nil {
		io.WriteString(sink, lineStr)
	}
}
