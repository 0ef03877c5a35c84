// Package log provides the leveled, structured logger used throughout the
// pipeline. It wraps logrus behind a small interface so call sites never
// depend on the logging backend directly.
package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Modular is a leveled logger that can be narrowed to a sub-scope via With.
type Modular interface {
	With(keyValues ...any) Modular

	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Infof(format string, v ...any)
	Debugf(format string, v ...any)
	Tracef(format string, v ...any)

	Error(msg string)
	Warn(msg string)
	Info(msg string)
	Debug(msg string)
}

type logrusLogger struct {
	entry *logrus.Entry
}

// Config controls the logger constructed by New.
type Config struct {
	// LogLevel is one of off, error, warn, info, debug, trace.
	LogLevel string
}

// New constructs a Modular logger writing to w at the configured level.
func New(w io.Writer, conf Config) Modular {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(levelFromString(conf.LogLevel))
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(logger)}
}

func levelFromString(level string) logrus.Level {
	switch strings.ToUpper(level) {
	case "OFF":
		return logrus.PanicLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "WARN":
		return logrus.WarnLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "TRACE":
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *logrusLogger) With(keyValues ...any) Modular {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keyValues); i += 2 {
		key, ok := keyValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keyValues[i+1]
	}
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) Errorf(format string, v ...any) { l.entry.Errorf(format, v...) }
func (l *logrusLogger) Warnf(format string, v ...any)  { l.entry.Warnf(format, v...) }
func (l *logrusLogger) Infof(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *logrusLogger) Debugf(format string, v ...any) { l.entry.Debugf(format, v...) }
func (l *logrusLogger) Tracef(format string, v ...any) { l.entry.Tracef(format, v...) }

func (l *logrusLogger) Error(msg string) { l.entry.Error(msg) }
func (l *logrusLogger) Warn(msg string)  { l.entry.Warn(msg) }
func (l *logrusLogger) Info(msg string)  { l.entry.Info(msg) }
func (l *logrusLogger) Debug(msg string) { l.entry.Debug(msg) }

// Noop returns a Modular logger that discards everything, for tests.
func Noop() Modular {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(logger)}
}
