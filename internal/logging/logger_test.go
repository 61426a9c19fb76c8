package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCategoriesAreNamedChildren(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Initialize(zap.New(core), Options{})
	defer Initialize(nil, Options{})

	Auth("login for %s", "cmdr")
	FetchDebug("cooldown %d", 12)
	Get(CategoryKernel).Warn("fact limit")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "auth", entries[0].LoggerName)
	assert.Equal(t, "login for cmdr", entries[0].Message)
	assert.Equal(t, "fetch", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Initialize(zap.New(core), Options{Disabled: []string{"store"}})
	defer Initialize(nil, Options{})

	Store("opened db")
	Auth("still here")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "auth", logs.All()[0].LoggerName)
}

func TestGetIsCached(t *testing.T) {
	Initialize(nil, Options{})
	a := Get(CategoryEDDN)
	b := Get(CategoryEDDN)
	assert.Same(t, a, b)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Initialize(zap.New(core), Options{})
	defer Initialize(nil, Options{})

	Get(CategoryFetch).With("status", "ok").Info("done")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "ok", logs.All()[0].ContextMap()["status"])
}

func TestBuildFallsBackToInfo(t *testing.T) {
	l, err := Build(Options{Level: "nonsense"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Initialize(zap.New(core), Options{})
	defer Initialize(nil, Options{})

	timer := StartTimer(CategoryStore, "vacuum")
	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}
