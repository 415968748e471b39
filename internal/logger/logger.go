package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levelNames = map[LogLevel]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

// Logger writes leveled, module-tagged lines and keeps the most recent ones
// in memory for the live log endpoint.
type Logger struct {
	mu     sync.Mutex
	level  LogLevel
	out    *log.Logger
	recent *Ring
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(INFO, os.Stderr, 500)
)

// New creates a new Logger instance
func New(level LogLevel, output io.Writer, keep int) *Logger {
	if output == nil {
		output = os.Stderr
	}

	return &Logger{
		level:  level,
		out:    log.New(output, "", log.Ldate|log.Ltime|log.Lmicroseconds),
		recent: NewRing(keep),
	}
}

// SetDefault replaces the global logger used by the package-level functions.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

// Default returns the global logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Recent returns up to n of the latest lines, oldest first.
func (l *Logger) Recent(n int) []string {
	return l.recent.Last(n)
}

// Clear drops the in-memory history.
func (l *Logger) Clear() {
	l.recent.Reset()
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	l.mu.Lock()
	currentLevel := l.level
	l.mu.Unlock()

	if level < currentLevel || level == SILENT {
		return
	}

	prefix := fmt.Sprintf("[%s]", levelNames[level])
	if module != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, module)
	}

	message := fmt.Sprintf(format, args...)
	l.out.Printf("%s %s", prefix, message)
	l.recent.Add(fmt.Sprintf("%s %s %s", time.Now().Format("15:04:05"), prefix, message))
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Global logger functions (use default logger)

func Debug(module string, format string, args ...interface{}) {
	Default().Debug(module, format, args...)
}

func Info(module string, format string, args ...interface{}) {
	Default().Info(module, format, args...)
}

func Warn(module string, format string, args ...interface{}) {
	Default().Warn(module, format, args...)
}

func Error(module string, format string, args ...interface{}) {
	Default().Error(module, format, args...)
}

// ParseLevel parses a log level string
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info", "":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}
