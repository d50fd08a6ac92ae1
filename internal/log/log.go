// Package log sets up structured JSON logging into rotating files.
package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrInvalidLevel = errors.New("invalid log level")

// Config selects where and how much to log.
type Config struct {
	Level     string `mapstructure:"level"` // debug, info, warn, error
	Dir       string `mapstructure:"dir"`   // empty logs to stderr only
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	Stderr    bool   `mapstructure:"stderr"` // mirror file output to stderr
}

func DefaultConfig() Config {
	return Config{Level: "info", MaxSizeMB: 32, Stderr: true}
}

type Logger struct {
	*slog.Logger
	LogFile string
	Start   time.Time

	level  *slog.LevelVar
	closer io.Closer
}

// ParseLevel maps a config string onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
}

// New creates a logger writing JSON lines to truck-nav.slog under c.Dir,
// rotated by size.
func New(c Config) (*Logger, error) {
	lvl, err := ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	l := &Logger{Start: time.Now(), level: new(slog.LevelVar)}
	l.level.Set(lvl)
	if c.Dir != "" {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(c.Dir, "truck-nav.slog"),
			MaxSize:    c.MaxSizeMB, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		writers = append(writers, w)
		l.LogFile = w.Filename
		l.closer = w
	}
	if c.Stderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	l.Logger = slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: l.level}))
	l.Logger.Info("Hello logging",
		slog.Time("start", l.Start),
		slog.String("GOOS", runtime.GOOS),
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("level", lvl.String()))
	return l, nil
}

// NewWriter creates a logger writing JSON lines to w, for tests and tools.
func NewWriter(w io.Writer, level slog.Level) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level)
	return &Logger{
		Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})),
		Start:  time.Now(),
		level:  lv,
	}
}

// SetLevel changes the level of a running logger, e.g. after a config
// reload.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil || l == nil || l.level == nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

// Slog returns the underlying logger for packages that take a *slog.Logger.
// A nil Logger yields one that discards everything.
func (l *Logger) Slog() *slog.Logger {
	if l == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}

// The logging methods accept a nil *Logger: debug and info messages are then
// discarded while warnings and errors still go to the default slog logger.

func (l *Logger) Debug(msg string, args ...any) {
	if l != nil {
		l.Logger.Debug(msg, args...)
	}
}

func (l *Logger) Debugf(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(context.Background(), slog.LevelDebug) {
		l.Logger.Debug(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l != nil {
		l.Logger.Info(msg, args...)
	}
}

func (l *Logger) Infof(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(context.Background(), slog.LevelInfo) {
		l.Logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warn(msg string, args ...any) {
	if l == nil {
		slog.Warn(msg, args...)
	} else {
		l.Logger.Warn(msg, args...)
	}
}

func (l *Logger) Error(msg string, args ...any) {
	if l == nil {
		slog.Error(msg, args...)
	} else {
		l.Logger.Error(msg, args...)
	}
}

func (l *Logger) Errorf(msg string, args ...any) {
	l.Error(fmt.Sprintf(msg, args...))
}

func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		Logger:  l.Logger.With(args...),
		LogFile: l.LogFile,
		Start:   l.Start,
		level:   l.level,
		closer:  l.closer,
	}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
