package logger

import (
	"fmt"
	"os"

	"github.com/fatih/color" // Import the fatih/color package for colored console output
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Colorized printing functions for the user-facing console log.
// Each behaves like fmt.Printf and callers keep the "[LEVEL]" prefix in the format string.

// Info logs progress messages in green.
var Info = color.New(color.FgGreen).PrintfFunc()

// Warn logs recoverable problems (optional tools, declined prompts) in bright magenta.
var Warn = color.New(color.FgHiMagenta).PrintfFunc()

// Error logs failures in red.
var Error = color.New(color.FgRed).PrintfFunc()

// Debug logs debug messages in cyan once Init enables it. Until then it is a no-op,
// so packages can log before (or without) the CLI calling Init, as tests do.
var Debug = func(format string, a ...any) {}

// diag is the structured diagnostics sink. It receives the failure details
// that the console only summarises. It is a no-op logger unless Init opens a log file.
var diag = zap.NewNop()

// Init configures the console and the diagnostics log.
// enableDebug turns on cyan Debug output. logFile, when non-empty, is opened in append
// mode and receives JSON diagnostics lines.
func Init(enableDebug bool, logFile string) error {
	if enableDebug {
		Debug = color.New(color.FgCyan).PrintfFunc()
	} else {
		Debug = func(format string, a ...any) {}
	}

	if logFile == "" {
		diag = zap.NewNop()
		return nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", logFile, err)
	}

	level := zapcore.InfoLevel
	if enableDebug {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(f), level)
	diag = zap.New(core).Named("ps1dev")
	return nil
}

// Diag returns the diagnostics logger, named for the calling component.
func Diag(component string) *zap.Logger {
	return diag.Named(component)
}

// Sync flushes buffered diagnostics. Errors are ignored; the log is best effort.
func Sync() {
	_ = diag.Sync()
}
