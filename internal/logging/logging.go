// Package logging provides a small leveled logger for the restoration service.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// Format selects the line layout.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Options configures a Logger. Zero values keep the current setting.
type Options struct {
	Level  string
	Format string
	// File appends output to the named file instead of stderr.
	File string
	// Caller adds file:line of the call site.
	Caller bool
}

// Logger provides leveled logging
type Logger struct {
	mu     sync.RWMutex
	level  Level
	format Format
	caller bool
	logger *log.Logger
	closer io.Closer
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(w, "", 0),
	}
}

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, LevelInfo)
	})
	return defaultLogger
}

// Configure applies opts to the logger. A previously opened log file is closed
// when the output changes.
func (l *Logger) Configure(opts Options) error {
	var out io.WriteCloser
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = f
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if opts.Level != "" {
		l.level = ParseLevel(opts.Level)
	}
	switch strings.ToLower(opts.Format) {
	case "json":
		l.format = FormatJSON
	case "text":
		l.format = FormatText
	}
	l.caller = opts.Caller
	if out != nil {
		if l.closer != nil {
			_ = l.closer.Close()
		}
		l.logger.SetOutput(out)
		l.closer = out
	}
	return nil
}

// ParseLevel maps a level name to a Level, defaulting to LevelInfo.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetLevelFromString sets the log level from a string
func (l *Logger) SetLevelFromString(levelStr string) {
	l.SetLevel(ParseLevel(levelStr))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.GetLevel()
}

// GetLevelString returns the current log level as a string
func (l *Logger) GetLevelString() string {
	return levelNames[l.GetLevel()]
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
	Caller  string `json:"caller,omitempty"`
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.RLock()
	currentLevel, lineFormat, withCaller := l.level, l.format, l.caller
	l.mu.RUnlock()

	if level < currentLevel {
		return
	}

	msg := fmt.Sprintf(format, args...)
	var caller string
	if withCaller {
		// log <- Debug/Info/Warn/Error <- call site
		if _, file, line, ok := runtime.Caller(2); ok {
			if i := strings.LastIndexByte(file, '/'); i >= 0 {
				file = file[i+1:]
			}
			caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	switch lineFormat {
	case FormatJSON:
		b, err := json.Marshal(jsonLine{
			Time:    time.Now().UTC().Format(time.RFC3339Nano),
			Level:   levelNames[level],
			Message: msg,
			Caller:  caller,
		})
		if err != nil {
			return
		}
		l.logger.Print(string(b))
	default:
		ts := time.Now().UTC().Format("2006/01/02 15:04:05")
		if caller != "" {
			l.logger.Printf("%s [%s] %s: %s", ts, levelNames[level], caller, msg)
			return
		}
		l.logger.Printf("%s [%s] %s", ts, levelNames[level], msg)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Package-level convenience functions

// Configure applies opts to the default logger.
func Configure(opts Options) error {
	return Default().Configure(opts)
}

// SetLevel sets the default logger's level
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetLevelFromString sets the default logger's level from a string
func SetLevelFromString(levelStr string) {
	Default().SetLevelFromString(levelStr)
}

// GetLevelString returns the default logger's level as a string
func GetLevelString() string {
	return Default().GetLevelString()
}

// Debug logs a debug message to the default logger
func Debug(format string, args ...interface{}) {
	Default().log(LevelDebug, format, args...)
}

// Info logs an info message to the default logger
func Info(format string, args ...interface{}) {
	Default().log(LevelInfo, format, args...)
}

// Warn logs a warning message to the default logger
func Warn(format string, args ...interface{}) {
	Default().log(LevelWarn, format, args...)
}

// Error logs an error message to the default logger
func Error(format string, args ...interface{}) {
	Default().log(LevelError, format, args...)
}
