package lib

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// LogLevel defines the severity of log messages
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Logger provides structured logging for the application
type Logger struct {
	level  LogLevel
	logger *log.Logger
}

// NewLogger creates a new logger instance
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// DefaultLogger returns a logger with INFO level
var DefaultLogger = NewLogger(LogLevelInfo)

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...interface{}) {
	if l.level <= LogLevelDebug {
		l.log("DEBUG", message, fields...)
	}
}

// Info logs an informational message
func (l *Logger) Info(message string, fields ...interface{}) {
	if l.level <= LogLevelInfo {
		l.log("INFO", message, fields...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...interface{}) {
	if l.level <= LogLevelWarn {
		l.log("WARN", message, fields...)
	}
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...interface{}) {
	if l.level <= LogLevelError {
		l.log("ERROR", message, fields...)
	}
}

// log formats and writes a log message with optional fields
func (l *Logger) log(level string, message string, fields ...interface{}) {
	var fieldsStr string
	if len(fields) > 0 {
		fieldsStr = fmt.Sprintf(" | %v", fields)
	}
	l.logger.Printf("[%s] %s%s", level, message, fieldsStr)
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// ParseLogLevel converts a string to LogLevel
func ParseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogRetry logs spawn retry attempts
func LogRetry(logger *Logger, operation string, attempt int, maxAttempts int, err error) {
	// Remove line breaks from operation to prevent log spoofing
	safeOperation := strings.ReplaceAll(operation, "\n", "")
	safeOperation = strings.ReplaceAll(safeOperation, "\r", "")
	logger.Warn(
		fmt.Sprintf("Retry attempt %d/%d for: %s", attempt+1, maxAttempts, safeOperation),
		"error", err,
	)
}

// LogStageStart logs the start of a pipeline stage
func LogStageStart(logger *Logger, stage string, jobID string) {
	logger.Info(
		"Stage started",
		"stage", stage,
		"job_id", jobID,
	)
}

// LogStageStatus logs a polled stage status
func LogStageStatus(logger *Logger, stage string, jobID string, progress float64, operation string) {
	logger.Debug(
		"Stage status",
		"stage", stage,
		"job_id", jobID,
		"progress", progress,
		"operation", operation,
	)
}

// LogStageFailed logs a failed pipeline stage
func LogStageFailed(logger *Logger, stage string, jobID string, errMsg string) {
	logger.Error(
		"Stage failed",
		"stage", stage,
		"job_id", jobID,
		"error", errMsg,
	)
}

// LogSpawn logs a remote function spawn
func LogSpawn(logger *Logger, function string, callID string, jobID string) {
	logger.Info(
		"Function spawned",
		"function", function,
		"call_id", callID,
		"job_id", jobID,
	)
}

// LogServiceCall logs HTTP calls to the compute platform
func LogServiceCall(logger *Logger, host string, endpoint string, method string) {
	logger.Debug(
		"Service call",
		"host", host,
		"endpoint", endpoint,
		"method", method,
	)
}

// LogServiceResponse logs HTTP responses from the compute platform
func LogServiceResponse(logger *Logger, host string, statusCode int, duration time.Duration) {
	if statusCode >= 400 {
		logger.Warn(
			"Service response",
			"host", host,
			"status", statusCode,
			"duration", duration,
		)
	} else {
		logger.Debug(
			"Service response",
			"host", host,
			"status", statusCode,
			"duration", duration,
		)
	}
}

// LogJobCreated logs job record creation
func LogJobCreated(logger *Logger, jobID string, jobType string) {
	logger.Info(
		"Job created",
		"job_id", jobID,
		"job_type", jobType,
	)
}
