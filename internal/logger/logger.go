// Package logger configures the process-wide slog logger with a tint console
// handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// Options controls Init.
type Options struct {
	Level      slog.Leveler // slog.LevelWarn, slog.LevelDebug, etc.
	Writer     io.Writer    // default: os.Stderr
	TimeFormat string       // default: time.Kitchen
	NoColor    bool
}

// Init installs a tint handler as both this package's logger and slog's default.
func Init(opts Options) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	timeFormat := opts.TimeFormat
	if timeFormat == "" {
		timeFormat = time.Kitchen
	}

	l := slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level,
		TimeFormat: timeFormat,
		NoColor:    opts.NoColor,
	}))

	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// ParseLevel maps "debug", "info", "warn" or "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// L returns the current logger. Before Init it discards everything.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { L().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { L().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { L().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { L().Error(msg, args...) }
