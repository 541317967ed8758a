// Package testutil provides shared helpers for package tests.
package testutil

import (
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Logs records the lines a test logger wrote, in order.
type Logs struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the recorded lines.
func (l *Logs) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether any recorded line holds every fragment.
func (l *Logs) Contains(fragments ...string) bool {
	for _, line := range l.Lines() {
		if containsAll(line, fragments) {
			return true
		}
	}
	return false
}

func containsAll(line string, fragments []string) bool {
	for _, f := range fragments {
		if !strings.Contains(line, f) {
			return false
		}
	}
	return true
}

// NewTestLogger returns a debug-level logger that writes through t.Log, so
// output only shows on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	logger, _ := NewRecordingLogger(t)
	return logger
}

// NewRecordingLogger is NewTestLogger that also keeps every line for
// assertions. Timestamps are dropped so lines compare stably.
func NewRecordingLogger(t testing.TB) (*slog.Logger, *Logs) {
	t.Helper()
	logs := &Logs{}
	h := slog.NewTextHandler(&testWriter{t: t, logs: logs}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(h), logs
}

type testWriter struct {
	t    testing.TB
	logs *Logs
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	line := strings.TrimSuffix(string(p), "\n")

	w.logs.mu.Lock()
	w.logs.lines = append(w.logs.lines, line)
	w.logs.mu.Unlock()

	w.t.Log(line)
	return len(p), nil
}
