package dex

import (
	"github.com/joeycumines/logiface"
)

// LogifaceLogger adapts a [logiface.Logger] to this package's [Logger]
// interface. Any logiface backend works here — stumpy, zerolog, slog,
// logrus — since the adapter only depends on the generified
// *logiface.Logger[logiface.Event] view every concrete
// *logiface.Logger[E] exposes via its Logger() method.
type LogifaceLogger struct {
	inner *logiface.Logger[logiface.Event]
}

// NewLogifaceLogger wraps l. Use l.Logger() to obtain the generified view
// from a concrete backend's *logiface.Logger[E], e.g. stumpy.L.New(...).
func NewLogifaceLogger(l *logiface.Logger[logiface.Event]) *LogifaceLogger {
	return &LogifaceLogger{inner: l}
}

var logLevelToLogiface = [...]logiface.Level{
	LevelDebug: logiface.LevelDebug,
	LevelInfo:  logiface.LevelInformational,
	LevelWarn:  logiface.LevelWarning,
	LevelError: logiface.LevelError,
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	if level >= 0 && int(level) < len(logLevelToLogiface) {
		return logLevelToLogiface[level]
	}
	return logiface.LevelInformational
}

// IsEnabled implements [Logger].
func (l *LogifaceLogger) IsEnabled(level LogLevel) bool {
	return l.inner.Level() >= toLogifaceLevel(level)
}

// Log implements [Logger], translating entry into a logiface builder call.
func (l *LogifaceLogger) Log(entry LogEntry) {
	b := l.inner.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	b = b.Str("category", entry.Category)
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	for k, v := range entry.Fields {
		b = b.Any(k, v)
	}
	b.Log(entry.Message)
}
