package engine

import (
	"os"

	elog "github.com/zishang520/engine.io/v2/log"
)

// Logger is the injected logging sink for the engine and its transports.
// Every subsystem gets its own prefixed instance instead of writing to one
// shared, process-wide logger.
type Logger interface {
	Debug(message string, args ...any)
	Error(message string, args ...any)
	Warning(message string, args ...any)
}

// Log wraps github.com/zishang520/engine.io/v2/log, one instance per
// subsystem, identified by a short prefix such as "engine" or
// "engine:polling".
type Log struct {
	*elog.Log
}

// NewLog creates a prefixed Logger. Verbosity is left to the wrapped package;
// NewLog does not consult debugEnabled below.
func NewLog(prefix string) *Log {
	return &Log{Log: elog.NewLog(prefix)}
}

var debugEnabled = os.Getenv("EIO_CLIENT_DEBUG") != ""

// nopLogger discards everything; used where callers construct an Engine
// without supplying their own Logger.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any)   {}
func (nopLogger) Error(string, ...any)   {}
func (nopLogger) Warning(string, ...any) {}
