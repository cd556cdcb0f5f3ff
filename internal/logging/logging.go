// Package logging builds the dispatcher's zap loggers, generalizing the
// teacher's global middleware.Logger singleton into a per-process
// constructor so each worker can carry its own "worker" field.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON zap.Logger at the given level (case-insensitive;
// unrecognized values fall back to info), matching the teacher's
// production encoder configuration.
func New(level string) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), parseLevel(level))

	return zap.New(core, zap.AddCaller())
}

// ForWorker returns a child logger tagged with a "worker" field
// (worker-NN + pid), the per-worker correlation field spec.md's ambient
// logging section requires.
func ForWorker(base *zap.Logger, name string, pid int) *zap.Logger {
	return base.With(zap.String("worker", name), zap.Int("pid", pid))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
