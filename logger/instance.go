package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

var (
	defaultLogger *Logger
	defaultMu     sync.RWMutex
)

func init() {
	l, err := New(DefaultConfig())
	if err != nil {
		log.Printf("Failed to initialize default logger: %v, using standard log", err)
		return
	}
	defaultLogger = l
}

// InitFromConfig initializes the logger from configuration
func InitFromConfig(level, filePath string, maxSize, maxBackups int, console bool) error {
	logLevel, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	l, err := New(LoggerConfig{
		Level:      logLevel,
		FilePath:   filePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Console:    console,
	})
	if err != nil {
		return err
	}

	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// ParseLogLevel parses log level string
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", level)
	}
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func emit(level LogLevel, name, format string, args ...interface{}) {
	if l := current(); l != nil {
		// logf <- emit <- Info or Entry.Info <- caller
		l.logf(3, level, name, format, args...)
		return
	}
	if name != "" {
		format = "[" + name + "] " + format
	}
	log.Printf("["+level.String()+"] "+format, args...)
}

// Debug logs debug level messages
func Debug(format string, args ...interface{}) { emit(DEBUG, "", format, args...) }

// Info logs info level messages
func Info(format string, args ...interface{}) { emit(INFO, "", format, args...) }

// Warn logs warning level messages
func Warn(format string, args ...interface{}) { emit(WARN, "", format, args...) }

// Error logs error level messages
func Error(format string, args ...interface{}) { emit(ERROR, "", format, args...) }

// Entry logs through the default logger with a fixed component prefix.
type Entry struct {
	name string
}

// Named returns an Entry that tags every line with "[name]".
func Named(name string) Entry {
	return Entry{name: name}
}

func (e Entry) Debug(format string, args ...interface{}) { emit(DEBUG, e.name, format, args...) }
func (e Entry) Info(format string, args ...interface{})  { emit(INFO, e.name, format, args...) }
func (e Entry) Warn(format string, args ...interface{})  { emit(WARN, e.name, format, args...) }
func (e Entry) Error(format string, args ...interface{}) { emit(ERROR, e.name, format, args...) }

// Close closes the logger
func Close() error {
	if l := current(); l != nil {
		return l.Close()
	}
	return nil
}
