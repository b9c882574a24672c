// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

// Logger is the process logger. Messages go to stdout and, once InitLogger
// has been called, to a log file as JSON lines.
type Logger struct {
	mu    sync.RWMutex
	zap   *zap.Logger
	file  *os.File
	level zap.AtomicLevel
}

var (
	globalLogger *Logger
	loggerOnce   sync.Once
)

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
		globalLogger = &Logger{
			level: level,
			zap:   zap.New(stdoutCore(level), zap.AddCaller(), zap.AddCallerSkip(2)),
		}
	})
	return globalLogger
}

// InitLogger initializes the logger with a log file
func InitLogger(logFile string, debug bool) error {
	logger := GetLogger()

	// Ensure log directory exists
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if debug {
		logger.level.SetLevel(zapcore.DebugLevel)
	}

	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewTee(
		stdoutCore(logger.level),
		zapcore.NewCore(fileEncoder, zapcore.Lock(file), logger.level),
	)

	logger.mu.Lock()
	defer logger.mu.Unlock()

	// Close previous file if exists
	if logger.file != nil {
		_ = logger.zap.Sync()
		logger.file.Close()
	}

	logger.file = file
	logger.zap = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	return nil
}

func stdoutCore(level zap.AtomicLevel) zapcore.Core {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), level)
}

// Sync flushes buffered entries and closes the log file.
func (l *Logger) Sync() {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zap.Sync()
	if l.file != nil {
		l.file.Close()
		l.file = nil
		l.zap = zap.New(stdoutCore(l.level), zap.AddCaller(), zap.AddCallerSkip(2))
	}
}

// log writes a log entry
func (l *Logger) log(level LogLevel, message string, fields map[string]interface{}) {
	zfields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zfields = append(zfields, zap.Any(key, value))
	}

	l.mu.RLock()
	z := l.zap
	l.mu.RUnlock()

	switch level {
	case DEBUG:
		z.Debug(message, zfields...)
	case INFO:
		z.Info(message, zfields...)
	case WARNING:
		z.Warn(message, zfields...)
	case ERROR:
		z.Error(message, zfields...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.log(WARNING, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}
