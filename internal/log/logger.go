package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gagyebu/internal/trace"
)

// Logger wraps slog.Logger and tags every record with a component.
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	// Output defaults to stdout.
	Output io.Writer
	// JSON selects slog's JSON handler instead of the text handler.
	JSON bool
}

func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
	}
}

func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: config.Level}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	}
	handler = trace.NewHandler(handler)

	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return &Logger{
		Logger:    slog.New(handler).With(FieldComponent, component),
		component: component,
	}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

// WithFields attaches a LogFields set.
func (l *Logger) WithFields(f LogFields) *Logger {
	return l.With(f.ToSlice()...)
}

// WithComponent returns a child logger whose records carry both the parent
// and the child component; slog keeps the latest value on output.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(FieldComponent, component),
		component: component,
	}
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.Logger.Enabled(context.Background(), level)
}

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
