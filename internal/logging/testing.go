package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger that records every entry at Debug and above.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns a recording logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(zapcore.DebugLevel)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		logs:   logs,
	}
}

// All returns every recorded entry.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

// FilterMessage returns the entries whose message is exactly msg.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.logs.FilterMessage(msg)
}

func (t *TestLogger) find(level zapcore.Level, substr string) bool {
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// AssertLogged fails tb unless an entry at level contains substr.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if !t.find(level, substr) {
		tb.Errorf("no %v entry containing %q in %v", level, substr, t.messages())
	}
}

// AssertNotLogged fails tb if an entry at level contains substr.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, substr string) {
	tb.Helper()
	if t.find(level, substr) {
		tb.Errorf("unexpected %v entry containing %q", level, substr)
	}
}

// AssertField fails tb unless an entry with message msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		got, ok := e.ContextMap()[key]
		if ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, want)
}

// AssertRunCorrelation fails tb unless msg was logged with run.id runID.
func (t *TestLogger) AssertRunCorrelation(tb testing.TB, msg, runID string) {
	tb.Helper()
	t.AssertField(tb, msg, "run.id", runID)
}

func (t *TestLogger) messages() []string {
	var out []string
	for _, e := range t.logs.All() {
		out = append(out, e.Level.String()+": "+e.Message)
	}
	return out
}
