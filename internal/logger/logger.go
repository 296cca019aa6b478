// Package logger wraps github.com/cenkalti/log with a process-wide handler
// so that every component logs through the same formatter and level.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cenkalti/log"
)

var (
	mu      sync.RWMutex
	handler log.Handler
)

func init() {
	SetHandler(log.NewFileHandler(os.Stderr))
	SetLevel(log.INFO)
}

// SetHandler changes the global logging handler.
// Loggers created before the call keep using the old handler.
func SetHandler(h log.Handler) {
	h.SetFormatter(logFormatter{})
	mu.Lock()
	handler = h
	mu.Unlock()
}

// SetLevel sets the logging level on the global handler.
func SetLevel(l log.Level) {
	mu.RLock()
	handler.SetLevel(l)
	mu.RUnlock()
}

// SetDebug is a shortcut for switching between DEBUG and INFO levels.
func SetDebug(enabled bool) {
	if enabled {
		SetLevel(log.DEBUG)
	} else {
		SetLevel(log.INFO)
	}
}

// Logger is for logging messages from inside of the program in various logging levels.
type Logger log.Logger

// New returns a new Logger with a name.
// Log messages are prefixed with this name by the default Handler.
func New(name string) Logger {
	mu.RLock()
	h := handler
	mu.RUnlock()
	l := log.NewLogger(name)
	l.SetLevel(log.DEBUG) // level filtering happens in the handler
	l.SetHandler(h)
	return l
}

type logFormatter struct{}

// Format outputs a message like "2024-02-28 18:15:57.123 INFO     [session] session.go:81 added torrent"
func (f logFormatter) Format(rec *log.Record) string {
	return fmt.Sprintf("%s %-8s [%s] %s %s",
		rec.Time.Format("2006-01-02 15:04:05.000"),
		rec.Level,
		rec.LoggerName,
		filepath.Base(rec.Filename)+":"+strconv.Itoa(rec.Line),
		rec.Message)
}
