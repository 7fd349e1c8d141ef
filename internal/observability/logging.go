// Package observability provides process-wide structured logging.
//
// Two logger shapes are supported: a human-oriented console logger for
// CLI commands (CLILogger) and a JSON logger for long-running serve
// processes. Both are zap; callers never configure zap directly.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide logger for CLI commands. It defaults to
// a no-op logger so library code can log unconditionally; InitCLILogger
// replaces it during command setup.
var CLILogger = zap.NewNop()

// InitCLILogger installs a console logger writing to stderr. Verbose
// enables debug-level output. The name appears on every line so piped
// output from child processes stays attributable.
func InitCLILogger(name string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewDevelopmentEncoderConfig()
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderCfg.TimeKey = "" // timestamps are noise on an interactive terminal

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	CLILogger = zap.New(core).Named(name)
}

// NewServeLogger builds a JSON logger for the HTTP serve process.
// Output goes to stderr; level accepts zap level names ("debug",
// "info", "warn", "error") and falls back to info on anything else.
func NewServeLogger(name, level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core, zap.AddCaller()).Named(name)
}

// Sync flushes the CLI logger. Sync errors on terminals are expected
// and ignored.
func Sync() {
	_ = CLILogger.Sync()
}
