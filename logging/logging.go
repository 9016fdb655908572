package logging

import (
	"fmt"
	"log"
	"os"
)

// logging levels
const (
	DEBUG = "DEBUG"
	INFO  = "INFO"
	WARN  = "WARN"
	ERROR = "ERROR"
)

var levels = map[string]int{
	DEBUG: 1,
	INFO:  2,
	WARN:  3,
	ERROR: 4,
}

// LogLevel defines the current logging level (default is INFO)
var LogLevel = INFO

var logger = log.New(os.Stdout, "", log.LstdFlags)

// SetLogLevel sets the log level for filtering logs
func SetLogLevel(logLevel string) {
	if _, ok := levels[logLevel]; ok {
		LogLevel = logLevel
	}
}

// Log writes a log message at a specified level, formatted with optional arguments.
// Messages below the current LogLevel are dropped.
func Log(level, message string, a ...any) {
	if levels[level] >= levels[LogLevel] {
		logger.Printf("[%s] %s\n", level, fmt.Sprintf(message, a...))
	}
}

// Debug logs a message at DEBUG level
func Debug(message string, a ...any) {
	Log(DEBUG, message, a...)
}

// Info logs a message at INFO level
func Info(message string, a ...any) {
	Log(INFO, message, a...)
}

// Warn logs a message at WARN level
func Warn(message string, a ...any) {
	Log(WARN, message, a...)
}

// Error logs a message at ERROR level
func Error(message string, a ...any) {
	Log(ERROR, message, a...)
}

// Panic exits with a panic
func Panic(message string, a ...any) {
	panic(fmt.Sprintf(message, a...))
}
