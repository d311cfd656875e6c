package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// Options configures Setup.
type Options struct {
	// Level is debug, info, warn or error. Empty falls back to DEBUG/LOG_LEVEL.
	Level string
	// File receives JSON-encoded entries in addition to the console. Empty disables it.
	File string
	// Console defaults to os.Stdout.
	Console io.Writer
}

var (
	mu        sync.RWMutex
	base      *zap.Logger
	sugar     *zap.SugaredLogger
	atom      = zap.NewAtomicLevel()
	levelOnce sync.Once
)

// ParseLevel converts a level name to a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func levelFromEnv() LogLevel {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "1", "true", "yes", "on":
		return LevelDebug
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// initLevel installs a console logger at the environment level unless Setup ran first.
func initLevel() {
	levelOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if base != nil {
			return
		}
		atom.SetLevel(levelFromEnv().zapLevel())
		install(zap.New(zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stdout), atom)))
	})
}

func install(l *zap.Logger) {
	base = l
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Setup builds the process logger: a console core plus, when opts.File is
// set, a JSON core appending to that file. The returned logger is also
// installed behind the package-level helpers. Call the returned function to
// flush and close the file.
func Setup(opts Options) (*zap.Logger, func() error, error) {
	level := levelFromEnv()
	if opts.Level != "" {
		level = ParseLevel(opts.Level)
	}
	atom.SetLevel(level.zapLevel())

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(), zapcore.Lock(zapcore.AddSync(console)), atom),
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), atom))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())

	levelOnce.Do(func() {})
	mu.Lock()
	install(logger)
	mu.Unlock()

	closer := func() error {
		_ = logger.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return logger, closer, nil
}

// L returns the process logger for injection into components.
func L() *zap.Logger {
	initLevel()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func s() *zap.SugaredLogger {
	initLevel()
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	switch atom.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(l LogLevel) {
	initLevel()
	atom.SetLevel(l.zapLevel())
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	s().Debugf(format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	s().Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	s().Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	s().Errorf(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	s().Fatalf(format, args...)
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
