// Package logs configures zap logging for CLI invocations and daemon
// workers, and masks credential material before it reaches any sink.
package logs

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mcpq/mcpq/internal/names"
)

// Log level names accepted on the command line.
const (
	LevelTrace = "trace"
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// parseLevel maps a level name to a zap level. Trace maps to debug for
// maximum verbosity.
func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return zap.DebugLevel
	case LevelInfo:
		return zap.InfoLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.WarnLevel
	}
}

// Console returns the stderr logger for CLI invocations. Standard output is
// reserved for command results, so diagnostics never go there.
func Console(debug bool) *zap.Logger {
	level := zap.WarnLevel
	if debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), level)
	return zap.New(NewMasker(core), zap.AddCaller())
}

// ConsoleLevel is Console with an explicit level name.
func ConsoleLevel(level string) *zap.Logger {
	core := zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), parseLevel(level))
	return zap.New(NewMasker(core), zap.AddCaller())
}

// Daemon returns a file-only logger for one server's daemon worker. The
// worker has no terminal, so everything goes to a rotated log file.
func Daemon(dir, server string, level string) (*zap.Logger, error) {
	path, err := FilePath(dir, DaemonLogName(server))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve daemon log path: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	core := zapcore.NewCore(fileEncoder(), zapcore.AddSync(sink), parseLevel(level))

	logger := zap.New(NewMasker(core), zap.AddCaller())
	return logger.With(zap.String("server", server)), nil
}

// DaemonLogName returns the log file name for one server's daemon.
func DaemonLogName(server string) string {
	return "daemon-" + names.File(server) + ".log"
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(cfg)
}
