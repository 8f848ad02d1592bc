package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"go.opentelemetry.io/otel/trace"
)

// LogFormat selects the log encoding
type LogFormat string

const (
	FormatJSON    LogFormat = "json"
	FormatConsole LogFormat = "console"
)

// LogLevel is a minimum log level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var levels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Config contains logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat

	// Add file:line of the call site
	IncludeCaller bool

	// Marshal pkg/errors stack traces on .Stack() events
	IncludeStacktrace bool

	// Add trace and span ids in FromContext
	IncludeTraceContext bool

	// Defaults to os.Stdout
	Output io.Writer

	// Fields added to every entry, e.g. instance or user
	GlobalFields map[string]string
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		Level:               LevelInfo,
		Format:              FormatJSON,
		IncludeCaller:       true,
		IncludeStacktrace:   true,
		IncludeTraceContext: true,
		Output:              os.Stdout,
		GlobalFields:        map[string]string{},
	}
}

var includeTrace = true

// New builds a logger from config. Global state is left alone.
func New(config Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if config.Output != nil {
		out = config.Output
	}
	if config.Format == FormatConsole {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if config.IncludeCaller {
		ctx = ctx.Caller()
	}
	for k, v := range config.GlobalFields {
		ctx = ctx.Str(k, v)
	}
	return ctx.Logger()
}

// Setup installs the global logger and level. An unknown level is an error
// and leaves the global logger untouched.
func Setup(config Config) error {
	level, ok := levels[config.Level]
	if !ok {
		return fmt.Errorf("invalid log level: %q", config.Level)
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if config.IncludeStacktrace {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	}
	includeTrace = config.IncludeTraceContext

	log.Logger = New(config)
	zerolog.SetGlobalLevel(level)
	return nil
}

// FromContext returns the logger carried by ctx, or the global logger, tagged
// with the active trace and span ids
func FromContext(ctx context.Context) zerolog.Logger {
	logger := *log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = log.Logger
	}

	sc := trace.SpanContextFromContext(ctx)
	if !includeTrace || !sc.IsValid() {
		return logger
	}
	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}

// WithContext returns a copy of ctx carrying logger
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// Component returns the global logger tagged with a component name
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
