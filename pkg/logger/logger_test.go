package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitConfiguresGlobalLogger(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { Replace(prev) })

	require.NoError(t, Init("debug", "json"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))

	require.NoError(t, Init("not-a-level", "console"))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
}

func TestLoggingHelpersEmitEntries(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	prev := Replace(zap.New(core))
	t.Cleanup(func() { Replace(prev) })

	Info("info message", zap.String("k", "v"))
	Error("error message")
	Warn("warn message")
	Debug("debug message")

	entries := recorded.All()
	require.Len(t, entries, 4)

	want := []string{"info message", "error message", "warn message", "debug message"}
	for i, entry := range entries {
		require.Equal(t, want[i], entry.Message)
	}
	require.Equal(t, "v", entries[0].ContextMap()["k"])
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	prev := Replace(zap.New(core))
	t.Cleanup(func() { Replace(prev) })

	WithModule("automation").Info("fired")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "automation", entries[0].ContextMap()["module"])
}

func TestReplaceNilFallsBackToNop(t *testing.T) {
	prev := Replace(nil)
	t.Cleanup(func() { Replace(prev) })

	require.NotNil(t, Logger())
	Info("dropped")
}
