package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestStandardLoggerPrefixes(t *testing.T) {
	var buf bytes.Buffer
	l := NewStandardLogger(log.New(&buf, "", 0))

	l.Info("hello %d", 1)
	l.Warning("careful %d", 2)
	l.Error("oops %d", 3)
	l.Critical("fire %d", 4)

	out := buf.String()
	for _, want := range []string{"[INFO] hello 1", "[WARNING] careful 2", "[ERROR] oops 3", "[CRITICAL] fire 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got %q", want, out)
		}
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	l := NewNopLogger()
	l.Info("x")
	l.Warning("x")
	l.Error("x")
	l.Critical("x")
	if err := l.Close(); err != nil {
		t.Fatalf("Close() = %v, want nil", err)
	}
}

func TestMockLoggerRecordsCalls(t *testing.T) {
	l := NewMockLogger()
	l.Info("a %d", 1)
	l.Warning("b %d", 2)
	l.Error("c %d", 3)
	l.Critical("d %d", 4)
	_ = l.Close()

	if got := l.InfoCalls; len(got) != 1 || got[0] != "a 1" {
		t.Errorf("InfoCalls = %v", got)
	}
	if got := l.WarningCalls; len(got) != 1 || got[0] != "b 2" {
		t.Errorf("WarningCalls = %v", got)
	}
	if got := l.ErrorCalls; len(got) != 1 || got[0] != "c 3" {
		t.Errorf("ErrorCalls = %v", got)
	}
	if got := l.CriticalCalls; len(got) != 1 || got[0] != "d 4" {
		t.Errorf("CriticalCalls = %v", got)
	}
	if !l.CloseCalled {
		t.Error("CloseCalled = false, want true")
	}
}
