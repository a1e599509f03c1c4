package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func withObservedLogger(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = prev })
	return logs
}

func TestGetLoggerFallback(t *testing.T) {
	prev := logger
	logger = nil
	t.Cleanup(func() { logger = prev })

	assert.NotNil(t, GetLogger())
}

func TestInitialize(t *testing.T) {
	assert.NoError(t, Initialize(true))
	assert.NotNil(t, GetLogger())

	// Initialize is once-only; a second call is a no-op.
	assert.NoError(t, Initialize(false))
}

func TestContextFieldsAppended(t *testing.T) {
	logs := withObservedLogger(t)

	ctx := WithClient(WithRoom(context.Background(), "tenant-1", "doc-1"), "client-1")
	ctx = context.WithValue(ctx, CorrelationIDKey, "corr-1")

	Info(ctx, "connected", zap.String("extra", "field"))

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "tenant-1", fields["tenant_id"])
	assert.Equal(t, "doc-1", fields["document_id"])
	assert.Equal(t, "client-1", fields["client_id"])
	assert.Equal(t, "corr-1", fields["correlation_id"])
	assert.Equal(t, "collab-gateway", fields["service"])
	assert.Equal(t, "field", fields["extra"])
}

func TestNilContextIsSafe(t *testing.T) {
	logs := withObservedLogger(t)

	//nolint:staticcheck
	Warn(nil, "no context")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "no context", entries[0].Message)
}

func TestLevels(t *testing.T) {
	logs := withObservedLogger(t)

	ctx := context.Background()
	Info(ctx, "info msg")
	Warn(ctx, "warn msg")
	Error(ctx, "error msg")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
