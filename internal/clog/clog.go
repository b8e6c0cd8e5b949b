// Package clog provides the leveled, key-value structured logging call
// shape used throughout this module, on top of logrus.
package clog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.Mutex
	std = logrus.New()
)

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the global verbosity. Accepted levels: trace, debug,
// info, warn, error.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	std.SetLevel(lvl)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Trace logs at trace level with key-value pairs, e.g. Trace("gap restored", "key", k, "anchor", a).
func Trace(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Trace(msg) }

// Debug logs at debug level with key-value pairs.
func Debug(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Debug(msg) }

// Info logs at info level with key-value pairs.
func Info(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Info(msg) }

// Warn logs at warn level with key-value pairs.
func Warn(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Warn(msg) }

// Error logs at error level with key-value pairs.
func Error(msg string, kv ...interface{}) { std.WithFields(fields(kv)).Error(msg) }

// New returns a named child logger (a logical component tag), prefixing
// log lines with a subsystem name.
func New(component string) *Logger {
	return &Logger{entry: std.WithField("component", component)}
}

// Logger is a component-scoped logger handle.
type Logger struct {
	entry *logrus.Entry
}

func (l *Logger) Trace(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Trace(msg) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Debug(msg) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Info(msg) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.entry.WithFields(fields(kv)).Warn(msg) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.entry.WithFields(fields(kv)).Error(msg) }
