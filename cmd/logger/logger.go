package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// LogLevel represents the log level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration
type Config struct {
	Level  LogLevel `toml:"level"`
	Format string   `toml:"format"` // "json" or "text"
	Output string   `toml:"output"` // "stdout", "stderr", or file path
}

// NewFromConfigStruct creates a logger from a config struct with string level
func NewFromConfigStruct(level, format, output string) *Logger {
	config := &Config{
		Level:  LogLevel(level),
		Format: format,
		Output: output,
	}
	return New(config)
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  LevelInfo,
		Format: "json",
		Output: "stdout",
	}
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	return NewWithWriter(config, openOutput(config.Output))
}

// NewWithWriter creates a logger that writes to w, ignoring config.Output
func NewWithWriter(config *Config, w io.Writer) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(config.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

func parseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput resolves the output destination, falling back to stdout if a
// log file cannot be opened
func openOutput(output string) io.Writer {
	switch output {
	case "stdout", "":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		if file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err == nil {
			return file
		}
		return os.Stdout
	}
}

// Global logger instance
var defaultLogger *Logger

// Init initializes the global logger
func Init(config *Config) {
	defaultLogger = New(config)
}

// SetDefault replaces the global logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the default logger, creating one if it doesn't exist
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// Convenience functions that use the default logger

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// With returns a logger with additional context
func With(args ...any) *Logger {
	return &Logger{Logger: Default().With(args...)}
}

type requestIDKey struct{}

// ContextWithRequestID stores the request ID for loggers further down the chain
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns the default logger tagged with the request ID, if any
func FromContext(ctx context.Context) *Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return With("request_id", id)
	}
	return Default()
}

// RequestInfo describes a completed HTTP request
type RequestInfo struct {
	Method     string
	Path       string
	ClientIP   string
	UserAgent  string
	RequestID  string
	PodName    string
	StatusCode int
	Duration   time.Duration
}

// LogRequest logs an HTTP request with structured data
func (l *Logger) LogRequest(req RequestInfo) {
	l.Info("request completed",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("client_ip", req.ClientIP),
		slog.String("user_agent", req.UserAgent),
		slog.String("request_id", req.RequestID),
		slog.String("pod_name", req.PodName),
		slog.Int("status_code", req.StatusCode),
		slog.String("duration", req.Duration.String()),
	)
}

// LogStartup logs application startup
func (l *Logger) LogStartup(port int, configFile string, podName string, version string) {
	l.Info("pod identity service starting",
		slog.Int("port", port),
		slog.String("config_file", configFile),
		slog.String("pod_name", podName),
		slog.String("version", version),
	)
}

// LogShutdown logs the end of a graceful shutdown
func (l *Logger) LogShutdown(reason string, took time.Duration) {
	l.Info("pod identity service stopped",
		slog.String("reason", reason),
		slog.String("shutdown_duration", took.String()),
	)
}

// LogError logs errors with context
func (l *Logger) LogError(operation string, err error, context ...any) {
	args := []any{
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	}
	args = append(args, context...)
	l.Error("operation failed", args...)
}

// LogConfig logs configuration loading
func (l *Logger) LogConfig(configPath string, loadedViaEnv bool, metricsEnabled bool) {
	l.Info("configuration loaded",
		slog.String("config_path", configPath),
		slog.Bool("loaded_via_env", loadedViaEnv),
		slog.Bool("metrics_enabled", metricsEnabled),
	)
}
