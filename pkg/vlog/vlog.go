// Package vlog is valveq's ambient structured logger.
//
// It follows the teacher's minilog texture: a set of named sinks each with
// their own level filter, package-level convenience functions
// (Debug/Info/Warn/Error/Fatal) that fan out to every registered sink, and a
// "LEVEL name: message" line prologue. Unlike the teacher's package-global
// design, callers that embed valveq in a larger program are never forced
// onto the global logger: every client type in this module also accepts an
// optional *Logger, constructed with New, that logs only to its own sinks
// and tags every line with a short per-handle correlation id.
package vlog

import (
	"fmt"
	"io"
	golog "log"
	"os"
	"strings"
	"sync"

	"github.com/rs/xid"
)

type sink struct {
	out   *golog.Logger
	level Level
	color bool
}

// Logger is a named collection of level-filtered sinks plus a correlation
// id. The zero value discards everything; use New or the package-level
// Default for an active logger.
type Logger struct {
	mu    sync.RWMutex
	sinks map[string]*sink
	id    string
}

// Default is the package-global logger used by the package-level
// Debug/Info/Warn/Error/Fatal functions, mirroring the teacher's
// always-on global minilog instance.
var Default = New()

// New returns a Logger with no sinks attached (so it is silent until
// AddLogger is called) and a fresh correlation id.
func New() *Logger {
	return &Logger{
		sinks: make(map[string]*sink),
		id:    xid.New().String(),
	}
}

// ID returns the logger's correlation id, included in every line it emits.
func (l *Logger) ID() string {
	return l.id
}

// AddLogger registers a named sink writing to out, filtered to level and
// above. Calling AddLogger again with the same name replaces the sink.
func (l *Logger) AddLogger(name string, out io.Writer, level Level, color bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks[name] = &sink{out: golog.New(out, "", golog.LstdFlags), level: level, color: color}
}

// DelLogger removes a named sink.
func (l *Logger) DelLogger(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.sinks, name)
}

// WillLog reports whether logging at level would reach at least one sink.
func (l *Logger) WillLog(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sinks {
		if level >= s.level {
			return true
		}
	}
	return false
}

const (
	colorDebug = "\x1b[34m"
	colorInfo  = "\x1b[32m"
	colorWarn  = "\x1b[33m"
	colorError = "\x1b[31m"
	colorFatal = "\x1b[31m"
	colorReset = "\x1b[0m"
)

func colorFor(level Level) string {
	switch level {
	case DEBUG:
		return colorDebug
	case INFO:
		return colorInfo
	case WARN:
		return colorWarn
	case ERROR:
		return colorError
	default:
		return colorFatal
	}
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var prologue strings.Builder
	prologue.WriteString(level.String())
	prologue.WriteByte(' ')
	prologue.WriteString(l.id)
	prologue.WriteString(": ")

	for _, s := range l.sinks {
		if level < s.level {
			continue
		}
		msg := prologue.String() + fmt.Sprintf(format, args...)
		if s.color {
			msg = colorFor(level) + msg + colorReset
		}
		s.out.Println(msg)
	}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Fatal logs at FATAL level then calls os.Exit(1).
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(FATAL, format, args...)
	os.Exit(1)
}

// AddLogger registers a sink on the Default logger.
func AddLogger(name string, out io.Writer, level Level, color bool) {
	Default.AddLogger(name, out, level, color)
}

// DelLogger removes a sink from the Default logger.
func DelLogger(name string) { Default.DelLogger(name) }

// Debug logs at DEBUG level on the Default logger.
func Debug(format string, args ...interface{}) { Default.Debug(format, args...) }

// Info logs at INFO level on the Default logger.
func Info(format string, args ...interface{}) { Default.Info(format, args...) }

// Warn logs at WARN level on the Default logger.
func Warn(format string, args ...interface{}) { Default.Warn(format, args...) }

// Error logs at ERROR level on the Default logger.
func Error(format string, args ...interface{}) { Default.Error(format, args...) }

// Fatal logs at FATAL level on the Default logger then exits.
func Fatal(format string, args ...interface{}) { Default.Fatal(format, args...) }
