// Package logging provides structured logging for lazytask on top of zerolog.
// Files are rotated with lumberjack. The TUI runs with console output
// disabled so log lines never land on the alternate screen.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is a zerolog level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
)

// Config describes where log lines go and how the log file rotates.
type Config struct {
	Level Level
	// JSON selects raw JSON on the console; files are always JSON.
	JSON     bool
	FilePath string

	// Rotation limits, in megabytes, files and days.
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool

	// Console mirrors output to stderr even when a file is configured.
	Console bool
	// Quiet disables the stderr fallback used when no file is configured.
	Quiet bool

	// Output replaces every other destination. Tests use it.
	Output io.Writer
}

func DefaultConfig() *Config {
	return &Config{
		Level:      InfoLevel,
		JSON:       true,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     7,
		Compress:   true,
	}
}

// Logger is a zerolog.Logger that remembers its component and command so
// derived loggers keep both.
type Logger struct {
	zl        zerolog.Logger
	component string
	command   string
}

var (
	mu      sync.RWMutex
	global  *Logger
	initDef sync.Once
)

// Init replaces the global logger. A nil cfg means DefaultConfig.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out, err := destination(cfg)
	if err != nil {
		return err
	}

	l := &Logger{zl: zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()}
	mu.Lock()
	global = l
	mu.Unlock()
	return nil
}

func destination(cfg *Config) (io.Writer, error) {
	if cfg.Output != nil {
		return cfg.Output, nil
	}

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	if cfg.Console || (cfg.FilePath == "" && !cfg.Quiet) {
		var console io.Writer = os.Stderr
		if !cfg.JSON {
			console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		}
		writers = append(writers, console)
	}

	switch len(writers) {
	case 0:
		return io.Discard, nil
	case 1:
		return writers[0], nil
	}
	return zerolog.MultiLevelWriter(writers...), nil
}

// Get returns the global logger, creating a default one on first use.
func Get() *Logger {
	initDef.Do(func() {
		mu.RLock()
		missing := global == nil
		mu.RUnlock()
		if missing {
			_ = Init(nil)
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func (l *Logger) derive(ctx zerolog.Context) *Logger {
	return &Logger{zl: ctx.Logger(), component: l.component, command: l.command}
}

func (l *Logger) WithComponent(component string) *Logger {
	d := l.derive(l.zl.With().Str("component", component))
	d.component = component
	return d
}

func (l *Logger) WithCommand(command string) *Logger {
	d := l.derive(l.zl.With().Str("command", command))
	d.command = command
	return d
}

// WithGeneration tags lines with the record-set generation they concern.
func (l *Logger) WithGeneration(gen uint64) *Logger {
	return l.derive(l.zl.With().Uint64("generation", gen))
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.zl.With().Interface(key, value))
}

func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zl.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return l.derive(ctx)
}

func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zl.With().Err(err))
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zl.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zl.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// ParseLevel accepts zerolog level names (debug, info, warn, error).
func ParseLevel(level string) (Level, error) {
	return zerolog.ParseLevel(level)
}

// WithComponent scopes the global logger to a package or subsystem.
func WithComponent(component string) *Logger {
	return Get().WithComponent(component)
}

// WithCommand scopes the global logger to a CLI subcommand.
func WithCommand(command string) *Logger {
	return Get().WithCommand(command)
}

// LoggingConfig is the string-typed form read from the config file.
// Zero rotation limits keep the defaults.
type LoggingConfig struct {
	Level      string
	FilePath   string
	JSON       bool
	Console    bool
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	Quiet      bool
}

// InitFromLogConfig parses lc and calls Init.
func InitFromLogConfig(lc LoggingConfig) error {
	cfg := DefaultConfig()
	if lc.Level != "" {
		level, err := ParseLevel(lc.Level)
		if err != nil {
			return err
		}
		cfg.Level = level
	}

	cfg.FilePath = lc.FilePath
	cfg.JSON = lc.JSON
	cfg.Console = lc.Console
	cfg.Quiet = lc.Quiet
	cfg.Compress = lc.Compress
	for _, o := range []struct {
		dst *int
		v   int
	}{{&cfg.MaxSize, lc.MaxSize}, {&cfg.MaxBackups, lc.MaxBackups}, {&cfg.MaxAge, lc.MaxAge}} {
		if o.v > 0 {
			*o.dst = o.v
		}
	}
	return Init(cfg)
}
