//go:build !windows

package logger

import (
	"fmt"
	"log/syslog"
)

// SyslogLogger writes log messages to the system log. Used once the
// daemon has backgrounded itself (see internal/daemonize), matching the
// original daemon's openlog("dbusdl", LOG_PID, LOG_DAEMON) call.
type SyslogLogger struct {
	w *syslog.Writer
}

// NewSyslogLogger opens a syslog connection tagged with the given
// process tag (conventionally "dbusdl").
func NewSyslogLogger(tag string) (*SyslogLogger, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("opening syslog: %w", err)
	}
	return &SyslogLogger{w: w}, nil
}

func (s *SyslogLogger) Info(format string, args ...interface{}) {
	_ = s.w.Info(fmt.Sprintf(format, args...))
}

func (s *SyslogLogger) Warning(format string, args ...interface{}) {
	_ = s.w.Warning(fmt.Sprintf(format, args...))
}

func (s *SyslogLogger) Error(format string, args ...interface{}) {
	_ = s.w.Err(fmt.Sprintf(format, args...))
}

func (s *SyslogLogger) Critical(format string, args ...interface{}) {
	_ = s.w.Crit(fmt.Sprintf(format, args...))
}

func (s *SyslogLogger) Close() error {
	return s.w.Close()
}

var _ Logger = (*SyslogLogger)(nil)
