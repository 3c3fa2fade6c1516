// Package progress appends human-readable phase lines to a log file.
//
// Each line is "<timestamp>,<message>\n". The file is opened, appended to
// and closed on every call so a crashed run still leaves its last line.
package progress

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"etlpipe/internal/domain"
)

const (
	// TimestampLayout renders year, abbreviated month and day, then the clock.
	TimestampLayout = "2006-Jan-02-15:04:05"
	// LegacyTimestampLayout glues the day and hour together, byte-compatible
	// with logs written by older runs.
	LegacyTimestampLayout = "2006-Jan-0215:04:05"
)

// Logger appends progress lines to a single file.
type Logger struct {
	path   string
	layout string
	now    func() time.Time

	mu sync.Mutex
}

// Option configures a Logger.
type Option func(*Logger)

// WithLegacyTimestamp switches to LegacyTimestampLayout.
func WithLegacyTimestamp(legacy bool) Option {
	return func(l *Logger) {
		if legacy {
			l.layout = LegacyTimestampLayout
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New returns a logger writing to path. The file is created on first use.
func New(path string, opts ...Option) *Logger {
	l := &Logger{path: path, layout: TimestampLayout, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the log file path.
func (l *Logger) Path() string { return l.path }

// Log appends one line. Failure to write is a sink failure.
func (l *Logger) Log(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.now().Format(l.layout) + "," + message + "\n"

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: progress log dir: %w", domain.ErrSinkWrite, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open progress log: %w", domain.ErrSinkWrite, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: write progress log: %w", domain.ErrSinkWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close progress log: %w", domain.ErrSinkWrite, err)
	}
	return nil
}
