package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel int

const (
	// DEBUG level for debug information
	DEBUG LogLevel = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning messages
	WARN
	// ERROR level for error messages
	ERROR
	// FATAL level for fatal errors
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// sink is shared by a logger and every child derived from it, so that
// SetLevel/SetOutput on the root affect request-scoped loggers too.
type sink struct {
	mu         sync.RWMutex
	level      zap.AtomicLevel
	output     zapcore.WriteSyncer
	jsonFormat bool
	service    string
	base       *zap.Logger
}

func (s *sink) rebuild() {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if s.jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, s.output, s.level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	if s.service != "" {
		base = base.With(zap.String("service", s.service))
	}
	s.base = base
}

// Logger provides structured logging capabilities
type Logger struct {
	sink   *sink
	fields []zap.Field
}

var (
	globalLogger *Logger
	once         sync.Once
)

// New creates a new logger instance writing JSON to stdout at INFO.
func New() *Logger {
	s := &sink{
		level:      zap.NewAtomicLevelAt(zapcore.InfoLevel),
		output:     zapcore.Lock(os.Stdout),
		jsonFormat: true,
	}
	s.rebuild()
	return &Logger{sink: s}
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			globalLogger = New()
		}
	})
	return globalLogger
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.sink.level.SetLevel(level.zapLevel())
}

// Level returns the current minimum level.
func (l *Logger) Level() LogLevel {
	switch l.sink.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	case zapcore.FatalLevel:
		return FATAL
	default:
		return INFO
	}
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = zapcore.AddSync(w)
	l.sink.rebuild()
}

// SetJSONFormat enables or disables JSON formatting
func (l *Logger) SetJSONFormat(enabled bool) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.jsonFormat = enabled
	l.sink.rebuild()
}

// SetServiceName tags every entry with service=<name>.
func (l *Logger) SetServiceName(name string) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.service = name
	l.sink.rebuild()
}

// WithField creates a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make([]zap.Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, zap.Any(key, value))
	return &Logger{sink: l.sink, fields: fields}
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	out := make([]zap.Field, 0, len(l.fields)+len(fields))
	out = append(out, l.fields...)
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return &Logger{sink: l.sink, fields: out}
}

// Zap exposes the underlying zap logger with this logger's fields attached.
func (l *Logger) Zap() *zap.Logger {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.base.WithOptions(zap.AddCallerSkip(-2)).With(l.fields...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.base.Sync()
}

func (l *Logger) log(level LogLevel, msg string, err error) {
	l.sink.mu.RLock()
	base := l.sink.base
	l.sink.mu.RUnlock()

	fields := l.fields
	if err != nil {
		fields = append(fields[:len(fields):len(fields)], zap.Error(err))
	}

	switch level {
	case DEBUG:
		base.Debug(msg, fields...)
	case INFO:
		base.Info(msg, fields...)
	case WARN:
		base.Warn(msg, fields...)
	case ERROR:
		base.Error(msg, fields...)
	case FATAL:
		base.Fatal(msg, fields...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.log(DEBUG, msg, nil)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.log(INFO, msg, nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.log(WARN, msg, nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, err error) {
	l.log(ERROR, msg, err)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, err error) {
	l.log(FATAL, msg, err)
}

// Fatalf logs a formatted fatal message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(FATAL, fmt.Sprintf(format, args...), nil)
}

// Global logging functions

// Debug logs a debug message using the global logger
func Debug(msg string) {
	GetLogger().log(DEBUG, msg, nil)
}

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...interface{}) {
	GetLogger().log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Info logs an info message using the global logger
func Info(msg string) {
	GetLogger().log(INFO, msg, nil)
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...interface{}) {
	GetLogger().log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warn logs a warning message using the global logger
func Warn(msg string) {
	GetLogger().log(WARN, msg, nil)
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...interface{}) {
	GetLogger().log(WARN, fmt.Sprintf(format, args...), nil)
}

// Error logs an error message using the global logger
func Error(msg string, err error) {
	GetLogger().log(ERROR, msg, err)
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...interface{}) {
	GetLogger().log(ERROR, fmt.Sprintf(format, args...), nil)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(msg string, err error) {
	GetLogger().log(FATAL, msg, err)
}

// SetGlobalLevel sets the global logger level
func SetGlobalLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// SetGlobalOutput sets the global logger output
func SetGlobalOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// Configure applies level and format strings (as read from LOG_LEVEL and
// LOG_FORMAT) to the global logger.
func Configure(level, format, service string) error {
	l := GetLogger()
	if service != "" {
		l.SetServiceName(service)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		l.SetJSONFormat(true)
	case "text", "console":
		l.SetJSONFormat(false)
	default:
		return fmt.Errorf("unknown log format: %s", format)
	}
	if level == "" {
		return nil
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

// ParseLevel parses a string log level
func ParseLevel(levelStr string) (LogLevel, error) {
	switch levelStr {
	case "DEBUG", "debug":
		return DEBUG, nil
	case "INFO", "info":
		return INFO, nil
	case "WARN", "warn", "WARNING", "warning":
		return WARN, nil
	case "ERROR", "error":
		return ERROR, nil
	case "FATAL", "fatal":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("unknown log level: %s", levelStr)
	}
}
