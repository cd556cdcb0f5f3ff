package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel_KnownValues(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	require.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	require.Equal(t, zapcore.ErrorLevel, parseLevel("Error"))
}

func TestParseLevel_UnknownFallsBackToInfo(t *testing.T) {
	require.Equal(t, zapcore.InfoLevel, parseLevel(""))
	require.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNew_ReturnsNonNilLogger(t *testing.T) {
	logger := New("info")
	require.NotNil(t, logger)
}

func TestForWorker_AddsWorkerAndPIDFields(t *testing.T) {
	base := New("info")
	child := ForWorker(base, "worker-01", 1234)
	require.NotNil(t, child)
	require.NotSame(t, base, child)

	core, logs := observer.New(zapcore.InfoLevel)
	ForWorker(zap.New(core), "worker-01", 1234).Info("tagged")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	require.Equal(t, "worker-01", fields["worker"])
	require.Equal(t, int64(1234), fields["pid"])
}
