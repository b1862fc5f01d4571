// Package logger provides structured NDJSON logging for bal.
//
// Every emitted line is a single JSON object with exactly the keys
// timestamp, level, message, module, event and fields. The module field
// identifies the owning component ("bal" for the root logger, or the name
// given to ForComponent, e.g. proxy, health, supervisor); the event field
// names the specific occurrence
// within that component so log consumers can filter without parsing
// message text.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed NDJSON schema and an immutable
// field-chaining builder, mirroring the donor's WithField/WithFields style.
type Logger struct {
	raw    *logrus.Logger
	module string
	fields logrus.Fields
}

// Config holds logger configuration.
type Config struct {
	Level  string
	Output io.Writer // defaults to os.Stdout when nil
}

// New creates a root Logger whose module is always "bal"; sub-loggers are
// derived with ForComponent/WithField/WithFields.
func New(cfg Config) (*Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	raw := logrus.New()
	raw.SetLevel(level)
	raw.SetFormatter(&ndjsonFormatter{})

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	raw.SetOutput(output)

	return &Logger{raw: raw, module: "bal", fields: logrus.Fields{}}, nil
}

// ForComponent returns a child logger scoped to the named module, matching
// the donor's component-specific sub-logger constructors
// (RequestLogger/BackendLogger/HealthCheckLogger/...).
func (l *Logger) ForComponent(module string) *Logger {
	return &Logger{raw: l.raw, module: module, fields: cloneFields(l.fields)}
}

// WithField returns a child logger with one additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := cloneFields(l.fields)
	fields[key] = value
	return &Logger{raw: l.raw, module: l.module, fields: fields}
}

// WithFields returns a child logger with several additional structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := cloneFields(l.fields)
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{raw: l.raw, module: l.module, fields: merged}
}

// WithError returns a child logger carrying the error's message as a field.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) entry() *logrus.Entry {
	return l.raw.WithField("module", l.module).WithFields(l.fields)
}

// Event logs message under the given event name — the primary logging
// entry point, since every NDJSON line must carry an event field.
func (l *Logger) Event(level logrus.Level, event, message string) {
	e := l.entry().WithField("event", event)
	e.Log(level, message)
}

func (l *Logger) Debug(event, message string) { l.Event(logrus.DebugLevel, event, message) }
func (l *Logger) Info(event, message string)  { l.Event(logrus.InfoLevel, event, message) }
func (l *Logger) Warn(event, message string)  { l.Event(logrus.WarnLevel, event, message) }
func (l *Logger) Error(event, message string) { l.Event(logrus.ErrorLevel, event, message) }

func cloneFields(src logrus.Fields) logrus.Fields {
	dst := make(logrus.Fields, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
