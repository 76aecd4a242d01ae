package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry with a component name and key/value helpers.
type Logger struct {
	entry     *logrus.Entry
	component string
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	Format    string // text or json
	Component string
	Output    io.Writer
}

// DefaultConfig returns sensible defaults for logging
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "text",
		Component: ComponentApp,
		Output:    os.Stdout,
	}
}

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	base := logrus.New()
	if config.Output != nil {
		base.SetOutput(config.Output)
	} else {
		base.SetOutput(os.Stdout)
	}
	base.SetLevel(ParseLevel(config.Level))
	if strings.EqualFold(config.Format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	component := config.Component
	if component == "" {
		component = ComponentApp
	}
	return &Logger{
		entry:     base.WithField(FieldComponent, component),
		component: component,
	}
}

// ParseLevel maps a level name to logrus; unknown names mean info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// With returns a new logger with the given key/value pairs attached
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		entry:     l.entry.WithFields(toFields(args)),
		component: l.component,
	}
}

// WithError attaches err under the error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With(FieldError, err.Error())
}

// WithComponent returns a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		entry:     l.entry.WithField(FieldComponent, component),
		component: component,
	}
}

func (l *Logger) Info(msg string, args ...any) { l.log(context.Background(), logrus.InfoLevel, msg, args) }
func (l *Logger) Warn(msg string, args ...any) { l.log(context.Background(), logrus.WarnLevel, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(context.Background(), logrus.ErrorLevel, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(context.Background(), logrus.DebugLevel, msg, args) }

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.InfoLevel, msg, args)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.WarnLevel, msg, args)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.ErrorLevel, msg, args)
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, logrus.DebugLevel, msg, args)
}

func (l *Logger) log(ctx context.Context, level logrus.Level, msg string, args []any) {
	e := l.entry
	if !e.Logger.IsLevelEnabled(level) {
		return
	}
	e = e.WithContext(ctx)
	if id := RequestID(ctx); id != "" {
		e = e.WithField(FieldRequestID, id)
	}
	if len(args) > 0 {
		e = e.WithFields(toFields(args))
	}
	e.Log(level, msg)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

var defaultLogger = New(DefaultConfig())

// SetDefault sets the default logger for the application
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

func Default() *Logger {
	return defaultLogger
}

// Discard returns a logger that writes nothing, for tests.
func Discard() *Logger {
	return New(Config{Output: io.Discard, Level: "error"})
}

func toFields(args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		if err, ok := args[i+1].(error); ok {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
