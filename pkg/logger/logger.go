package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	verbose bool
	sugar   *zap.SugaredLogger
}

// New returns a console logger writing to stdout. Debug output is only
// emitted when verbose is set.
func New(verbose bool) *Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		level,
	)

	return FromZap(zap.New(core), verbose)
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger, verbose bool) *Logger {
	return &Logger{
		verbose: verbose,
		sugar:   z.Sugar(),
	}
}

// With returns a child logger that attaches key/value to every entry.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		verbose: l.verbose,
		sugar:   l.sugar.With(key, value),
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.verbose {
		l.sugar.Debugf(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries. Errors from syncing a terminal are ignored
// by callers.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
