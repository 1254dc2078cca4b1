// SPDX-License-Identifier: MIT
/*
Package log is the engine's leveled logger.

Control-side code calls the package functions directly. Code running on
the audio callback thread must not: it posts to a Deferred sink instead,
which never blocks and is drained by a control goroutine.
*/
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

var currentLevel atomic.Uint32

var logger = stdlog.New(os.Stderr, "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects log output, e.g. away from a terminal UI.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Enabled reports whether messages at level are currently emitted.
func Enabled(level LogLevel) bool {
	return level >= GetLevel()
}

// Logf emits a message at an explicit level. LevelFatal exits the process.
func Logf(level LogLevel, format string, v ...any) {
	if level == LevelFatal {
		logger.Fatalf("[%s] %s", LevelFatal, fmt.Sprintf(format, v...))
	}
	if Enabled(level) {
		logger.Printf("[%s] %s", level, fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	Logf(LevelDebug, format, v...)
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	Logf(LevelInfo, format, v...)
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	Logf(LevelWarn, format, v...)
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	Logf(LevelError, format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
// Fatal messages are always logged regardless of the current level.
func Fatalf(format string, v ...any) {
	Logf(LevelFatal, format, v...)
}
