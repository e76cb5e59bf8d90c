package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "inf", entries[1].Message)
	assert.Equal(t, int64(3), entries[2].ContextMap()["c"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("module", "vlob")

	log.Info(context.Background(), "hello", "k", "v")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "vlob", fields["module"])
	assert.Equal(t, "v", fields["k"])
}

func TestNew_Backends(t *testing.T) {
	var buf bytes.Buffer

	l, err := New("slog", "debug", &buf)
	require.NoError(t, err)
	l.Debug(context.Background(), "visible")
	assert.Contains(t, buf.String(), `"msg":"visible"`)

	_, err = New("slog", "chatty", &buf)
	assert.Error(t, err)

	_, err = New("logrus", "info", &buf)
	assert.Error(t, err)

	z, err := New("zap", "warn", &buf)
	require.NoError(t, err)
	assert.IsType(t, &ZapLogger{}, z)
}

func TestNop(t *testing.T) {
	l := Nop().With("a", 1)
	l.Info(context.Background(), "ignored")
}
