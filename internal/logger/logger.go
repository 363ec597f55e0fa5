// Package logger provides leveled logging for marginalia.
// Info, Warn and Error are always written; Debug is written only when
// verbose mode is enabled via the --verbose flag. Every line carries a
// timestamp.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// timeLayout is the timestamp prefix of every line.
const timeLayout = "2006-01-02 15:04:05.000"

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	now               = time.Now
)

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetClock replaces the timestamp source. Passing nil restores time.Now.
func SetClock(fn func() time.Time) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	now = fn
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if verbose {
		write("DEBUG", format, args...)
	}
}

// Info prints an informational message.
func Info(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("INFO", format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("WARN", format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	write("ERROR", format, args...)
}

// write formats one line (caller must hold lock).
func write(level, format string, args ...any) {
	fmt.Fprintf(output, "%s [%s] %s\n", now().Format(timeLayout), level, fmt.Sprintf(format, args...))
}
