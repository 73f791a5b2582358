package monitoring

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestSetLoggerNilIsNoOp(t *testing.T) {
	defer SetLogger(log.Printf)

	SetLogger(nil)
	// Must not panic or write anywhere.
	Logf("dropped %d", 1)
}

func TestSetLoggerCapture(t *testing.T) {
	defer SetLogger(log.Printf)

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, format)
	})
	Logf("hello %s", "world")
	if len(got) != 1 || got[0] != "hello %s" {
		t.Fatalf("captured = %v, want one entry", got)
	}
}

func TestInitWritesRelativeTimestampLines(t *testing.T) {
	defer SetLogger(log.Printf)

	var buf bytes.Buffer
	Init(0, &buf)
	Logf("tile %d done", 7)

	line := buf.String()
	if !strings.HasPrefix(line, ">") {
		t.Fatalf("line = %q, want '>' prefix", line)
	}
	if !strings.Contains(line, "tile 7 done") {
		t.Fatalf("line = %q, want message text", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line = %q, want trailing newline", line)
	}
	if !strings.Contains(line, "logger_test.go:") {
		t.Fatalf("line = %q, want caller file:line", line)
	}
}
