package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

var (
	// globalLogger is the global logger instance
	globalLogger *Logger

	// once ensures the global logger is only initialized once
	once sync.Once

	// defaultConfig keeps library output quiet unless a caller opts in
	defaultConfig = Config{
		Level:      "warn",
		Format:     FormatConsole,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
)

// Logger wraps zerolog.Logger to provide our own interface
type Logger struct {
	zerolog.Logger
	level zerolog.Level
}

// GetLevel returns the level the logger was configured with
func (l *Logger) GetLevel() zerolog.Level {
	if l == nil {
		return zerolog.NoLevel
	}
	if l.level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l.level
}

// LogFormat defines the available log formats
type LogFormat string

const (
	// FormatJSON is the JSON format
	FormatJSON LogFormat = "json"
	// FormatConsole is the console format
	FormatConsole LogFormat = "console"
)

// String returns the string representation of the log format
func (f LogFormat) String() string {
	return string(f)
}

// ParseLogFormat parses a string into a LogFormat. Unknown values map to JSON.
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text", "pretty":
		return FormatConsole
	default:
		return FormatJSON
	}
}

// Config holds the configuration for the logger
type Config struct {
	// Level is the log level (debug, info, warn, error, fatal, panic)
	Level string
	// Format is the log format (json, console)
	Format LogFormat
	// Output is the output writer (default: os.Stderr)
	Output io.Writer
	// TimeFormat is the time format (default: time.RFC3339)
	TimeFormat string
}

// Get returns the global logger instance
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			globalLogger = newLogger(defaultConfig)
		}
	})
	return globalLogger
}

// ResetForTesting resets the global logger and sync.Once variable.
// This should only be used in tests
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
}

// Setup initializes the global logger with the given configuration.
// Only the first call has an effect.
func Setup(cfg Config) {
	once.Do(func() {
		globalLogger = newLogger(cfg)
	})
}

// ForceSetup replaces the global logger regardless of earlier Setup calls
func ForceSetup(cfg Config) {
	l := newLogger(cfg)
	once.Do(func() {})
	globalLogger = l
	globalLogger.Debug("Logger re-initialized", map[string]interface{}{
		"format": string(cfg.Format),
		"level":  l.GetLevel().String(),
	})
}

// New builds a standalone logger that does not touch the global instance
func New(cfg Config) *Logger {
	return newLogger(cfg)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), level: zerolog.Disabled}
}

func newLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil {
			level = parsed
		}
	}

	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case FormatConsole:
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: cfg.TimeFormat,
		})
	default:
		zl = zerolog.New(output)
	}

	zl = zl.Level(level).With().Timestamp().Logger()

	return &Logger{
		Logger: zl,
		level:  level,
	}
}

// loggerKey is the key used to store the logger in the context
type loggerKey struct{}

// NewContext returns a copy of ctx carrying logger.
// If logger is nil, the original context is returned unchanged
func NewContext(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or nil
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return nil
	}
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return nil
}

// OrGlobal returns l, or the global logger when l is nil
func OrGlobal(l *Logger) *Logger {
	if l == nil {
		return Get()
	}
	return l
}

// WithFields adds the given fields to the logger and returns a new logger instance
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}

	if len(fields) == 0 {
		return l
	}

	return &Logger{
		Logger: l.Logger.With().Fields(fields).Logger(),
		level:  l.level,
	}
}

// With creates a child logger with the given fields
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	return l.WithFields(fields)
}

// Component is shorthand for With(component=name)
func (l *Logger) Component(name string) *Logger {
	return l.With(map[string]interface{}{"component": name})
}

func (l *Logger) event(e *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && len(fields[0]) > 0 {
		e = e.Fields(fields[0])
	}
	e.Msg(msg)
}

// Info logs a message at Info level with optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Info(), msg, fields)
}

// Infof logs a formatted message at Info level
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Info().Msgf(format, args...)
}

// Warn logs a message at Warn level with optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Warn(), msg, fields)
}

// Warnf logs a formatted message at Warn level
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Warn().Msgf(format, args...)
}

// Debug logs a message at Debug level with optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Debug(), msg, fields)
}

// Debugf logs a formatted message at Debug level
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Debug().Msgf(format, args...)
}

// Error logs a message at Error level with optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Error(), msg, fields)
}

// Errorf logs a formatted message at Error level
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Logger.Error().Msgf(format, args...)
}
