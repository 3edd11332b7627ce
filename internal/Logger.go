package internal

import "fmt"

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	Info LogLevel = iota
	Warning
	Error
	Debug
)

func (l LogLevel) String() string {
	switch l {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Debug:
		return "Debug"
	default:
		return fmt.Sprintf("LogLevel(%d)", int(l))
	}
}

// LogStruct represents a log entry with a level and message
type LogStruct struct {
	LogLevel LogLevel
	Message  string
}

// LogHandlerFunc defines the function signature for log handlers
type LogHandlerFunc func(sender interface{}, log LogStruct)

// LogHandler receives every message pushed by the patch engine.
// Messages are dropped while it is nil.
var LogHandler LogHandlerFunc

func pushLog(sender interface{}, level LogLevel, message string) {
	if LogHandler != nil {
		LogHandler(sender, LogStruct{
			LogLevel: level,
			Message:  message,
		})
	}
}

// PushLogDebug sends a debug log message
func PushLogDebug(sender interface{}, message string) {
	pushLog(sender, Debug, message)
}

// PushLogInfo sends an info log message
func PushLogInfo(sender interface{}, message string) {
	pushLog(sender, Info, message)
}

// PushLogWarning sends a warning log message
func PushLogWarning(sender interface{}, message string) {
	pushLog(sender, Warning, message)
}

// PushLogError sends an error log message
func PushLogError(sender interface{}, message string) {
	pushLog(sender, Error, message)
}

// PushLogDebugf formats and sends a debug log message.
// Formatting is skipped entirely when no handler is installed.
func PushLogDebugf(sender interface{}, format string, args ...interface{}) {
	if LogHandler != nil {
		pushLog(sender, Debug, fmt.Sprintf(format, args...))
	}
}

// PushLogWarningf formats and sends a warning log message
func PushLogWarningf(sender interface{}, format string, args ...interface{}) {
	if LogHandler != nil {
		pushLog(sender, Warning, fmt.Sprintf(format, args...))
	}
}
