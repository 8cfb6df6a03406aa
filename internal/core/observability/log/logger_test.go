package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_FieldsReachCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core)

	logger.With(String("wire", "Client/ref")).Info("invoked",
		Int("attempt", 2),
		Duration("took", time.Millisecond),
		Error(errors.New("boom")),
		Error(nil),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "Client/ref", ctx["wire"])
	assert.Equal(t, int64(2), ctx["attempt"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestLogger_SetLevelAppliesToDerived(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core)
	child := logger.Named("conversation")

	logger.SetLevel(LevelWarn)
	child.Log(LevelInfo, "dropped")
	child.Log(LevelWarn, "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
	assert.Equal(t, LevelWarn, child.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "error", LevelError.String())
}
