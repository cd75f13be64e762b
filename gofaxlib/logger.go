package gofaxlib

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry is a single structured log message.
type LogEntry struct {
	Time      time.Time
	Namespace string
	Message   string
	Level     logrus.Level
	Fields    map[string]interface{}
}

// LogManager formats and dispatches log entries.
type LogManager struct {
	logger *logrus.Logger
}

// NewLogManager wraps logger. A nil logger logs to stderr at info level.
func NewLogManager(logger *logrus.Logger) *LogManager {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &LogManager{logger: logger}
}

// NewDiscardLogManager returns a LogManager that drops everything.
func NewDiscardLogManager() *LogManager {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &LogManager{logger: l}
}

// Logger returns the underlying logrus logger.
func (lm *LogManager) Logger() *logrus.Logger { return lm.logger }

// SetLevel parses and applies a level name such as "debug".
func (lm *LogManager) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	lm.logger.SetLevel(lvl)
	return nil
}

// BuildLog creates a log entry in namespace from a format string.
func (lm *LogManager) BuildLog(namespace, format string, level logrus.Level, fields map[string]interface{}, args ...interface{}) *LogEntry {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &LogEntry{
		Time:      time.Now(),
		Namespace: namespace,
		Message:   msg,
		Level:     level,
		Fields:    fields,
	}
}

// SendLog writes the entry.
func (lm *LogManager) SendLog(entry *LogEntry) {
	if lm == nil || entry == nil || !lm.logger.IsLevelEnabled(entry.Level) {
		return
	}
	e := lm.logger.WithField("ns", entry.Namespace).WithTime(entry.Time)
	if len(entry.Fields) > 0 {
		e = e.WithFields(entry.Fields)
	}
	e.Log(entry.Level, entry.Message)
}
