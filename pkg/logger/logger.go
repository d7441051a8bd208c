package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output formats understood by SetOutput.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// consoleTimeFormat matches the supervisor's console layout.
const consoleTimeFormat = "2006-01-02 15:04:05.000"

// LogEntry represents a single log entry
type LogEntry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  map[string]string
}

// Logger provides leveled logging with streaming support.
// Console output is rendered by zerolog; every accepted entry is also
// fanned out to subscribers.
type Logger struct {
	serviceName string
	version     string

	mu             sync.RWMutex
	subscribers    []chan LogEntry
	out            io.Writer
	format         string
	file           *os.File
	console        zerolog.Logger
	level          zerolog.Level
	disableConsole bool
}

// New creates a new logger instance writing to stdout.
func New(serviceName, version string) *Logger {
	l := &Logger{
		serviceName: serviceName,
		version:     version,
		subscribers: make([]chan LogEntry, 0),
		level:       zerolog.InfoLevel,
	}
	format := FormatJSON
	if isTerminal() {
		format = FormatText
	}
	l.SetOutput(os.Stdout, format)
	return l
}

// Nop returns a logger that accepts entries but never writes to the console.
// Subscribers still receive entries.
func Nop() *Logger {
	l := New("nop", "")
	l.DisableConsoleOutput()
	return l
}

// isTerminal checks if we're outputting to a terminal (for color support)
func isTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetOutput redirects console output. format is FormatText or FormatJSON.
func (l *Logger) SetOutput(w io.Writer, format string) {
	l.mu.Lock()
	l.out = w
	l.format = format
	l.rebuildLocked()
	l.mu.Unlock()
}

// OpenFile mirrors every console entry, as JSON, into the file at path. The
// file is opened in append mode and its directory created when missing.
func (l *Logger) OpenFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.mu.Lock()
	previous := l.file
	l.file = file
	l.rebuildLocked()
	l.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	return nil
}

// Close releases the log file, if any. Console output continues.
func (l *Logger) Close() error {
	l.mu.Lock()
	file := l.file
	l.file = nil
	l.rebuildLocked()
	l.mu.Unlock()

	if file != nil {
		return file.Close()
	}
	return nil
}

func (l *Logger) rebuildLocked() {
	w := l.out
	if strings.EqualFold(l.format, FormatText) {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: consoleTimeFormat,
			NoColor:    !isTerminal(),
		}
	}
	if l.file != nil {
		w = zerolog.MultiLevelWriter(w, l.file)
	}

	console := zerolog.New(w).With().Timestamp().Str("service", l.serviceName)
	if l.version != "" {
		console = console.Str("version", l.version)
	}
	l.console = console.Logger()
}

// SetLevel sets the minimum level that is recorded. Accepts debug, info,
// warn, error and fatal.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	l.mu.Lock()
	l.level = parsed
	l.mu.Unlock()
	return nil
}

// DebugEnabled reports whether debug entries are recorded.
func (l *Logger) DebugEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level <= zerolog.DebugLevel
}

// Subscribe returns a channel to receive log entries
func (l *Logger) Subscribe() <-chan LogEntry {
	ch := make(chan LogEntry, 100)

	l.mu.Lock()
	l.subscribers = append(l.subscribers, ch)
	l.mu.Unlock()

	return ch
}

// DisableConsoleOutput disables console output when entries are only streamed
func (l *Logger) DisableConsoleOutput() {
	l.mu.Lock()
	l.disableConsole = true
	l.mu.Unlock()
}

// EnableConsoleOutput enables console output (default behavior)
func (l *Logger) EnableConsoleOutput() {
	l.mu.Lock()
	l.disableConsole = false
	l.mu.Unlock()
}

func (l *Logger) log(level zerolog.Level, message string, fields map[string]string) {
	l.mu.RLock()
	if level < l.level {
		l.mu.RUnlock()
		return
	}
	console := l.console
	shouldOutputToConsole := !l.disableConsole
	l.mu.RUnlock()

	entry := LogEntry{
		Time:    time.Now(),
		Level:   strings.ToUpper(level.String()),
		Message: message,
		Fields:  fields,
	}

	if shouldOutputToConsole {
		ev := console.WithLevel(level)
		for k, v := range fields {
			ev = ev.Str(k, v)
		}
		ev.Msg(message)
	}

	l.mu.RLock()
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
			// Skip if channel is full
		}
	}
	l.mu.RUnlock()
}

// Debug logs a debug message with optional formatting
func (l *Logger) Debug(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log(zerolog.DebugLevel, message, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(zerolog.DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message with optional formatting
func (l *Logger) Info(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log(zerolog.InfoLevel, message, nil)
}

// Warn logs a warning message with optional formatting
func (l *Logger) Warn(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log(zerolog.WarnLevel, message, nil)
}

// Error logs an error message with optional formatting
func (l *Logger) Error(message string, args ...interface{}) {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	l.log(zerolog.ErrorLevel, message, nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(zerolog.ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// WithFields logs a message with additional fields
func (l *Logger) WithFields(fields map[string]string) *LogContext {
	return &LogContext{
		logger: l,
		fields: fields,
	}
}

// LogContext provides field-based logging
type LogContext struct {
	logger *Logger
	fields map[string]string
}

func (c *LogContext) Debug(message string) {
	c.logger.log(zerolog.DebugLevel, message, c.fields)
}

func (c *LogContext) Error(message string) {
	c.logger.log(zerolog.ErrorLevel, message, c.fields)
}
