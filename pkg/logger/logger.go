// Package logger provides the daemon's structured logging interface.
// It supports a console backend for foreground runs and a syslog
// backend for background (daemonized) runs, mirroring the original
// D-Bus DL daemon's msg_info/msg_error split between stdout and syslog.
package logger

import (
	"fmt"
	"log"
)

// Logger is the structured logging interface used throughout the daemon.
type Logger interface {
	// Info logs routine progress (e.g. "Start downloading URL").
	Info(format string, args ...interface{})
	// Warning logs a recoverable anomaly (e.g. a spurious cancel).
	Warning(format string, args ...interface{})
	// Error logs a failure that does not abort the daemon.
	Error(format string, args ...interface{})
	// Critical logs a failure that risks daemon integrity (e.g. a
	// leaked outbound event on allocation failure).
	Critical(format string, args ...interface{})
	// Close releases resources held by the logger (syslog handle, etc).
	// Safe to call multiple times.
	Close() error
}

// StandardLogger wraps the stdlib *log.Logger for console output.
type StandardLogger struct {
	logger *log.Logger
}

// NewStandardLogger creates a logger that wraps the given *log.Logger.
func NewStandardLogger(l *log.Logger) *StandardLogger {
	return &StandardLogger{logger: l}
}

func (s *StandardLogger) Info(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+format, args...)
}

func (s *StandardLogger) Warning(format string, args ...interface{}) {
	s.logger.Printf("[WARNING] "+format, args...)
}

func (s *StandardLogger) Error(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

func (s *StandardLogger) Critical(format string, args ...interface{}) {
	s.logger.Printf("[CRITICAL] "+format, args...)
}

func (s *StandardLogger) Close() error {
	return nil
}

// NopLogger discards all messages.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (n *NopLogger) Info(format string, args ...interface{})     {}
func (n *NopLogger) Warning(format string, args ...interface{})  {}
func (n *NopLogger) Error(format string, args ...interface{})    {}
func (n *NopLogger) Critical(format string, args ...interface{}) {}
func (n *NopLogger) Close() error                                { return nil }

var (
	_ Logger = (*StandardLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)

// MockLogger records all log calls for assertions in tests.
type MockLogger struct {
	InfoCalls     []string
	WarningCalls  []string
	ErrorCalls    []string
	CriticalCalls []string
	CloseCalled   bool
}

func NewMockLogger() *MockLogger {
	return &MockLogger{
		InfoCalls:     make([]string, 0),
		WarningCalls:  make([]string, 0),
		ErrorCalls:    make([]string, 0),
		CriticalCalls: make([]string, 0),
	}
}

func (m *MockLogger) Info(format string, args ...interface{}) {
	m.InfoCalls = append(m.InfoCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Warning(format string, args ...interface{}) {
	m.WarningCalls = append(m.WarningCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Error(format string, args ...interface{}) {
	m.ErrorCalls = append(m.ErrorCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Critical(format string, args ...interface{}) {
	m.CriticalCalls = append(m.CriticalCalls, fmt.Sprintf(format, args...))
}

func (m *MockLogger) Close() error {
	m.CloseCalled = true
	return nil
}

var _ Logger = (*MockLogger)(nil)
