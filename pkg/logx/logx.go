// Package logx provides the component logger used across triad.
//
// The API mirrors a printf-style logger (Info/Warn/Error/Debug) bound to an
// agent or component ID, backed by a process-wide zap logger.
package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process-wide logger.
type Options struct {
	Level string // debug, info, warn, error
	File  string // optional append-only log file, tee'd with stderr
	JSON  bool   // JSON encoding instead of console
}

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

func init() { //nolint:gochecknoinits // logger must be usable before Init is called
	if l, err := build(Options{Level: envLevel()}); err == nil {
		base = l
	}
}

func envLevel() string {
	if d := os.Getenv("DEBUG"); d == "1" || strings.EqualFold(d, "true") {
		return "debug"
	}
	return "info"
}

// Init replaces the process-wide logger according to opts.
func Init(opts Options) error {
	l, err := build(opts)
	if err != nil {
		return err
	}
	SetBase(l)
	return nil
}

// SetBase installs an already constructed zap logger. Tests use this with an
// observer core.
func SetBase(l *zap.Logger) {
	baseMu.Lock()
	defer baseMu.Unlock()
	base = l
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

func current() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

func build(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level)}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

// Logger is a printf-style logger bound to an agent or component ID.
type Logger struct {
	agentID string
}

// NewLogger returns a logger that tags every entry with agentID.
func NewLogger(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	return current().With(zap.String("agent_id", l.agentID)).Sugar()
}

func (l *Logger) Debug(format string, args ...any) { l.sugar().Debugf(format, args...) }

func (l *Logger) Info(format string, args ...any) { l.sugar().Infof(format, args...) }

func (l *Logger) Warn(format string, args ...any) { l.sugar().Warnf(format, args...) }

func (l *Logger) Error(format string, args ...any) { l.sugar().Errorf(format, args...) }

// With returns the underlying zap logger with agent_id and the given fields
// attached, for call sites that want structured fields.
func (l *Logger) With(fields ...zap.Field) *zap.Logger {
	return current().With(append([]zap.Field{zap.String("agent_id", l.agentID)}, fields...)...)
}

func (l *Logger) GetAgentID() string {
	return l.agentID
}

func (l *Logger) WithAgentID(agentID string) *Logger {
	return &Logger{agentID: agentID}
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	err := logx.Errorf("setup failed: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// A nil err returns nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
