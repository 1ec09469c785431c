package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	TRACE LogLevel = iota // Raw radio events (every advertisement, every notification)
	DEBUG                 // Wire payloads and state transitions
	INFO                  // High-level events (match, approval, outcome)
	WARN                  // Soft failures
	ERROR                 // Errors
)

var (
	currentLevel LogLevel  = INFO
	output       io.Writer = os.Stdout
	mu           sync.RWMutex
)

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// SetOutput redirects all log lines to w. A nil writer restores stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	output = w
}

// ParseLevel converts a string to a LogLevel
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return TRACE
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// String returns the padded name used in log lines.
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO "
	case WARN:
		return "WARN "
	case ERROR:
		return "ERROR"
	default:
		return "?????"
	}
}

// enabled reports whether level would be printed. Lower levels are more verbose.
func enabled(level LogLevel) bool {
	return level >= GetLevel()
}

func log(level LogLevel, prefix, format string, args ...interface{}) {
	if !enabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)

	mu.RLock()
	defer mu.RUnlock()
	if prefix != "" {
		fmt.Fprintf(output, "[%s %s] %s\n", prefix, level, msg)
	} else {
		fmt.Fprintf(output, "[%s] %s\n", level, msg)
	}
}

// Trace logs a trace message (raw radio events)
func Trace(prefix, format string, args ...interface{}) {
	log(TRACE, prefix, format, args...)
}

// Debug logs a debug message (payloads, transitions)
func Debug(prefix, format string, args ...interface{}) {
	log(DEBUG, prefix, format, args...)
}

// Info logs an info message (high-level events)
func Info(prefix, format string, args ...interface{}) {
	log(INFO, prefix, format, args...)
}

// Warn logs a warning message
func Warn(prefix, format string, args ...interface{}) {
	log(WARN, prefix, format, args...)
}

// Error logs an error message
func Error(prefix, format string, args ...interface{}) {
	log(ERROR, prefix, format, args...)
}

// ToJSON converts any value to a pretty-printed JSON string for logging
func ToJSON(v interface{}) string {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(jsonBytes)
}

// DebugJSON logs a debug message with a JSON representation
func DebugJSON(prefix, label string, v interface{}) {
	if !enabled(DEBUG) {
		return
	}
	log(DEBUG, prefix, "%s:\n%s", label, ToJSON(v))
}

// Short returns the first 8 characters of an identifier for log prefixes.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
