// Package logger builds the process-wide zap.Logger.  Every component logs
// through zap.L()/zap.S() once this has run; New installs the result as the
// global logger so leaf packages never need to thread a *zap.Logger through
// every constructor.
//
// Output goes to two places at once: stdout, in a human-readable console
// encoding for interactive/dev use, and a rotating file under
// <root>/log/cancelwatch.log managed by lumberjack (10 MiB per file, 10
// backups kept, per the service's log-rotation policy).
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.  Component is attached to every
// line so multi-package log streams can be filtered downstream.
type Options struct {
	RootDir   string
	Component string
	Debug     bool
}

// New builds a *zap.Logger that tees to stdout and a rotating file, and
// installs it as the zap global.  Callers should defer the returned
// sync func to flush buffered log lines on shutdown.
func New(opts Options) (*zap.Logger, func(), error) {
	logDir := filepath.Join(opts.RootDir, "log")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, func() {}, err
	}

	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	fileEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "cancelwatch.log"),
		MaxSize:    10, // MiB
		MaxBackups: 10,
		Compress:   false,
	}

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(fileSink), level),
	)

	l := zap.New(core, zap.AddCaller()).With(zap.String("component", opts.Component))
	zap.ReplaceGlobals(l)

	l.Info("logger online", zap.Bool("debug", opts.Debug), zap.String("log_dir", logDir))
	return l, func() { _ = l.Sync() }, nil
}

// Named returns a child logger scoped to a sub-component, leaving the
// global logger untouched.  Use for packages that want a stable field
// without relying on the ambient global (STOMP client, enrichment engine).
func Named(name string) *zap.Logger {
	return zap.L().Named(name)
}
