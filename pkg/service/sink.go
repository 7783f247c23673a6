package service

import (
	"github.com/saltehb/hiway/pkg/models"
)

// ErrorSink receives entries whose field update was skipped.
type ErrorSink interface {
	Report(entry models.ReportEntry, err error)
}

// ErrorSinkFunc adapts a function to ErrorSink.
type ErrorSinkFunc func(entry models.ReportEntry, err error)

func (f ErrorSinkFunc) Report(entry models.ReportEntry, err error) {
	f(entry, err)
}

// LogSink writes skipped entries to a Logger.
type LogSink struct {
	logger Logger
}

func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(entry models.ReportEntry, err error) {
	if entry.InvocID != nil {
		s.logger.Errorf("Skipped entry '%s' of run %s invocation %d: %v", entry.Key, entry.RunID, *entry.InvocID, err)
		return
	}
	s.logger.Errorf("Skipped entry '%s' of run %s: %v", entry.Key, entry.RunID, err)
}
