package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap's SugaredLogger.
type Logger struct {
	*zap.SugaredLogger
}

// defaultZapLevel is used when the configured level is unknown.
const defaultZapLevel = zapcore.InfoLevel

// toZapLevel maps a configured level name onto zapcore.Level.
func toZapLevel(levelStr string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

// newConsoleCore builds a console core on stdout. Timestamps are RFC3339 since the
// process usually runs under a supervisor that does not stamp lines itself.
func newConsoleCore(level zapcore.Level) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	ws := zapcore.Lock(os.Stdout)
	return zapcore.NewCore(encoder, zapcore.AddSync(ws), zap.NewAtomicLevelAt(level))
}

// New constructs a logger for the given level without touching the process singleton.
func New(levelStr string) *Logger {
	core := newConsoleCore(toZapLevel(levelStr))
	return &Logger{
		SugaredLogger: zap.New(core).Sugar(),
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Named returns a child logger tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(component)}
}
