package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents the severity of a log message
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Logger is the main logger interface
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithPrefix(prefix string) Logger
}

// output is shared by a logger and every child derived from it so that
// concurrent lines never interleave and level changes apply to all of them.
type output struct {
	mu       sync.Mutex
	level    Level
	writer   io.Writer
	noColor  bool
	showTime bool
	exit     func(int)
}

type logger struct {
	out    *output
	fields map[string]interface{}
	prefix string
}

var (
	timeColor   = color.New(color.FgHiBlack)
	prefixColor = color.New(color.FgCyan)
	fieldColor  = color.New(color.FgHiBlack)
	levelColors = map[Level]*color.Color{
		DebugLevel: color.New(color.FgHiBlack),
		InfoLevel:  color.New(color.FgGreen),
		WarnLevel:  color.New(color.FgYellow),
		ErrorLevel: color.New(color.FgRed),
		FatalLevel: color.New(color.FgRed, color.Bold),
	}
	levelLabels = map[Level]string{
		DebugLevel: "DEBUG",
		InfoLevel:  "INFO ",
		WarnLevel:  "WARN ",
		ErrorLevel: "ERROR",
		FatalLevel: "FATAL",
	}
)

var (
	defaultMu     sync.RWMutex
	defaultLogger = New()
)

// Config holds logger configuration
type Config struct {
	Level    Level
	Writer   io.Writer
	NoColor  bool
	ShowTime bool
}

// New creates a new logger with default configuration
func New() Logger {
	return NewWithConfig(Config{
		Level:    InfoLevel,
		Writer:   os.Stdout,
		ShowTime: true,
	})
}

// NewWithConfig creates a new logger with custom configuration
func NewWithConfig(cfg Config) Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	return &logger{
		out: &output{
			level:    cfg.Level,
			writer:   w,
			noColor:  cfg.NoColor,
			showTime: cfg.ShowTime,
			exit:     os.Exit,
		},
		fields: map[string]interface{}{},
	}
}

// Discard returns a logger that writes nothing. Useful in tests.
func Discard() Logger {
	return NewWithConfig(Config{Level: FatalLevel + 1, Writer: io.Discard, NoColor: true})
}

// GetDefaultLogger returns the process-wide logger.
func GetDefaultLogger() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide logger.
func SetDefaultLogger(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}

func defaultOutput() *output {
	if l, ok := GetDefaultLogger().(*logger); ok {
		return l.out
	}
	return nil
}

// SetLevel sets the global log level
func SetLevel(level Level) {
	if out := defaultOutput(); out != nil {
		out.mu.Lock()
		out.level = level
		out.mu.Unlock()
	}
}

// SetNoColor disables color output
func SetNoColor(noColor bool) {
	if out := defaultOutput(); out != nil {
		out.mu.Lock()
		out.noColor = noColor
		out.mu.Unlock()
	}
}

// Helper methods for the default logger
func Debug(args ...interface{})                       { GetDefaultLogger().Debug(args...) }
func Debugf(format string, args ...interface{})       { GetDefaultLogger().Debugf(format, args...) }
func Info(args ...interface{})                        { GetDefaultLogger().Info(args...) }
func Infof(format string, args ...interface{})        { GetDefaultLogger().Infof(format, args...) }
func Warn(args ...interface{})                        { GetDefaultLogger().Warn(args...) }
func Warnf(format string, args ...interface{})        { GetDefaultLogger().Warnf(format, args...) }
func Error(args ...interface{})                       { GetDefaultLogger().Error(args...) }
func Errorf(format string, args ...interface{})       { GetDefaultLogger().Errorf(format, args...) }
func Fatal(args ...interface{})                       { GetDefaultLogger().Fatal(args...) }
func Fatalf(format string, args ...interface{})       { GetDefaultLogger().Fatalf(format, args...) }
func WithField(key string, value interface{}) Logger  { return GetDefaultLogger().WithField(key, value) }
func WithFields(fields map[string]interface{}) Logger { return GetDefaultLogger().WithFields(fields) }
func WithPrefix(prefix string) Logger                 { return GetDefaultLogger().WithPrefix(prefix) }

func paint(c *color.Color, noColor bool, s string) string {
	if noColor {
		return s
	}
	return c.Sprint(s)
}

func (l *logger) log(level Level, args ...interface{}) {
	out := l.out
	out.mu.Lock()

	if level < out.level {
		out.mu.Unlock()
		return
	}

	parts := make([]string, 0, 5)
	if out.showTime {
		parts = append(parts, paint(timeColor, out.noColor, time.Now().Format("15:04:05")))
	}
	parts = append(parts, paint(levelColors[level], out.noColor, levelLabels[level]))
	if l.prefix != "" {
		parts = append(parts, paint(prefixColor, out.noColor, "["+l.prefix+"]"))
	}
	if len(l.fields) > 0 {
		parts = append(parts, paint(fieldColor, out.noColor, formatFields(l.fields)))
	}
	parts = append(parts, fmt.Sprint(args...))

	_, _ = fmt.Fprintln(out.writer, strings.Join(parts, " "))
	out.mu.Unlock()

	// Exit on fatal (after unlocking mutex)
	if level == FatalLevel {
		out.exit(1)
	}
}

// formatFields renders fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(pairs, " ")
}

func (l *logger) logf(level Level, format string, args ...interface{}) {
	l.log(level, fmt.Sprintf(format, args...))
}

func (l *logger) Debug(args ...interface{})                 { l.log(DebugLevel, args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *logger) Info(args ...interface{})                  { l.log(InfoLevel, args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *logger) Warn(args ...interface{})                  { l.log(WarnLevel, args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }
func (l *logger) Error(args ...interface{})                 { l.log(ErrorLevel, args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }
func (l *logger) Fatal(args ...interface{})                 { l.log(FatalLevel, args...) }
func (l *logger) Fatalf(format string, args ...interface{}) { l.logf(FatalLevel, format, args...) }

func (l *logger) child(prefix string, extra map[string]interface{}) *logger {
	fields := make(map[string]interface{}, len(l.fields)+len(extra))
	for k, v := range l.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &logger{out: l.out, fields: fields, prefix: prefix}
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return l.child(l.prefix, map[string]interface{}{key: value})
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	return l.child(l.prefix, fields)
}

// WithPrefix returns a child logger tagged with prefix. Nested prefixes are
// joined with a dot.
func (l *logger) WithPrefix(prefix string) Logger {
	if l.prefix != "" && prefix != "" {
		prefix = l.prefix + "." + prefix
	}
	return l.child(prefix, nil)
}

// ParseLevel parses a string log level
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// noColorEnabled reports whether the default logger prints without color.
func noColorEnabled() bool {
	out := defaultOutput()
	if out == nil {
		return true
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	return out.noColor
}
