// Package logger is a printf-style leveled logger on top of zerolog.
//
// Jupyter captures the kernel's stderr into the server log, so the default
// destination is stderr; a log path in the settings redirects to a file.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var levels = [...]struct {
	name string
	zl   zerolog.Level
}{
	LevelDebug: {"DEBUG", zerolog.DebugLevel},
	LevelInfo:  {"INFO", zerolog.InfoLevel},
	LevelWarn:  {"WARN", zerolog.WarnLevel},
	LevelError: {"ERROR", zerolog.ErrorLevel},
	LevelNone:  {"NONE", zerolog.Disabled},
}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levels) {
		return "UNKNOWN"
	}
	return levels[l].name
}

// ParseLevel is case-insensitive and accepts "warning" for LevelWarn.
// Anything unrecognised is LevelInfo.
func ParseLevel(s string) Level {
	s = strings.ToUpper(s)
	if s == "WARNING" {
		return LevelWarn
	}
	for l, def := range levels {
		if def.name == s {
			return Level(l)
		}
	}
	return LevelInfo
}

const timeFormat = "2006-01-02 15:04:05.000"

// Logger writes lines at or above its level. Loggers derived with WithPrefix
// share the level with their parent.
type Logger struct {
	level  *atomic.Int32
	prefix string

	mu   sync.RWMutex
	zl   zerolog.Logger
	file *os.File
	off  bool
}

var (
	global     *Logger
	globalMu   sync.Mutex
	globalOnce sync.Once
)

// Init sets the global logger once. An empty logPath logs to stderr.
func Init(level Level, logPath string) error {
	var err error
	globalOnce.Do(func() {
		var l *Logger
		if logPath == "" && level != LevelNone {
			l = NewWriter(level, os.Stderr, "")
		} else if l, err = New(level, logPath, ""); err != nil {
			return
		}
		globalMu.Lock()
		global = l
		globalMu.Unlock()
	})
	return err
}

// New opens (appending) the log file at logPath, creating its directory.
// LevelNone or an empty path gives a logger that drops everything.
func New(level Level, logPath string, prefix string) (*Logger, error) {
	if level == LevelNone || logPath == "" {
		l := NewWriter(level, io.Discard, prefix)
		l.off = true
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := NewWriter(level, f, prefix)
	l.file = f
	return l, nil
}

// NewWriter logs plain console lines to w.
func NewWriter(level Level, w io.Writer, prefix string) *Logger {
	lv := new(atomic.Int32)
	lv.Store(int32(level))
	out := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: timeFormat}
	return &Logger{
		level:  lv,
		prefix: prefix,
		zl:     zerolog.New(out).With().Timestamp().Logger(),
	}
}

// Global returns the logger set by Init, or a stderr logger at LevelWarn
// when Init has not run.
func Global() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewWriter(LevelWarn, os.Stderr, "")
	}
	return global
}

// WithPrefix derives a logger tagging each line with "[parent:prefix]".
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.prefix != "" {
		prefix = l.prefix + ":" + prefix
	}
	return &Logger{level: l.level, prefix: prefix, zl: l.zl, file: l.file, off: l.off}
}

func (l *Logger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *Logger) GetLevel() Level { return Level(l.level.Load()) }

func (l *Logger) logf(level Level, format string, args []any) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.off || level < l.GetLevel() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = "[" + l.prefix + "] " + msg
	}
	l.zl.WithLevel(levels[level].zl).Msg(msg)
}

func (l *Logger) Debug(format string, args ...any) { l.logf(LevelDebug, format, args) }
func (l *Logger) Info(format string, args ...any)  { l.logf(LevelInfo, format, args) }
func (l *Logger) Warn(format string, args ...any)  { l.logf(LevelWarn, format, args) }
func (l *Logger) Error(format string, args ...any) { l.logf(LevelError, format, args) }

// Close closes the log file, if any. Later writes are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.off = true
	return err
}

func Debug(format string, args ...any) { Global().Debug(format, args...) }
func Info(format string, args ...any)  { Global().Info(format, args...) }
func Warn(format string, args ...any)  { Global().Warn(format, args...) }
func Error(format string, args ...any) { Global().Error(format, args...) }
