package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
)

// ParseLevel converts a textual level into a LogLevel. Unknown values map to
// LevelInfo and ok=false.
func ParseLevel(s string) (level LogLevel, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

func initLevel() {
	levelOnce.Do(func() {
		switch strings.ToLower(os.Getenv("DEBUG")) {
		case "1", "true", "yes", "on":
			currentLevel = LevelDebug
			return
		}
		currentLevel, _ = ParseLevel(os.Getenv("LOG_LEVEL"))
	})
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logAt(level LogLevel, tag, format string, args ...interface{}) {
	if GetLevel() <= level {
		log.Printf("["+tag+"] "+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) { logAt(LevelDebug, "DEBUG", format, args...) }

// Info logs an info message
func Info(format string, args ...interface{}) { logAt(LevelInfo, "INFO", format, args...) }

// Warn logs a warning message
func Warn(format string, args ...interface{}) { logAt(LevelWarn, "WARN", format, args...) }

// Error logs an error message
func Error(format string, args ...interface{}) { logAt(LevelError, "ERROR", format, args...) }

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Component prefixes every message with a subsystem name, e.g.
// "[INFO] registry: loaded 12 entries".
type Component string

func (c Component) prefix(format string) string {
	return string(c) + ": " + format
}

// Debug logs at debug level with the component prefix.
func (c Component) Debug(format string, args ...interface{}) { Debug(c.prefix(format), args...) }

// Info logs at info level with the component prefix.
func (c Component) Info(format string, args ...interface{}) { Info(c.prefix(format), args...) }

// Warn logs at warn level with the component prefix.
func (c Component) Warn(format string, args ...interface{}) { Warn(c.prefix(format), args...) }

// Error logs at error level with the component prefix.
func (c Component) Error(format string, args ...interface{}) { Error(c.prefix(format), args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
