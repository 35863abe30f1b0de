package observability

import "github.com/sirupsen/logrus"

// logrusLogger adapts a logrus entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrus wraps a logrus logger so it can back the pipeline's Logger
// interface. The zero logrus configuration (text formatter on stderr) is a
// sensible CLI default.
func NewLogrus(lg *logrus.Logger) Logger {
	return logrusLogger{entry: logrus.NewEntry(lg)}
}

func (l logrusLogger) Debug(msg string, fields ...Field) { l.withFields(fields).Debug(msg) }
func (l logrusLogger) Info(msg string, fields ...Field)  { l.withFields(fields).Info(msg) }
func (l logrusLogger) Warn(msg string, fields ...Field)  { l.withFields(fields).Warn(msg) }
func (l logrusLogger) Error(msg string, fields ...Field) { l.withFields(fields).Error(msg) }

func (l logrusLogger) With(fields ...Field) Logger {
	return logrusLogger{entry: l.withFields(fields)}
}

func (l logrusLogger) withFields(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	fs := make(logrus.Fields, len(fields))
	for _, f := range fields {
		fs[f.Key()] = f.Value()
	}
	return l.entry.WithFields(fs)
}
