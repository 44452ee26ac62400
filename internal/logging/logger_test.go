// Package logging tests for the zap-backed logging facade.
package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	InitWithCore(core)
	t.Cleanup(func() { Init(Config{Env: "dev", Level: "info"}) })
	return logs
}

// TestInfo_withContext verifies context maps become structured fields.
func TestInfo_withContext(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Info("Sync cycle completed", map[string]interface{}{"pushed": 3, "pulled": 7})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Sync cycle completed", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	ctx := entries[0].ContextMap()
	assert.EqualValues(t, 3, ctx["pushed"])
	assert.EqualValues(t, 7, ctx["pulled"])
}

// TestContextMerge verifies multiple maps are merged, later keys winning.
func TestContextMerge(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Warn("merged",
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)

	ctx := logs.All()[0].ContextMap()
	assert.EqualValues(t, 1, ctx["a"])
	assert.EqualValues(t, 2, ctx["b"])
}

// TestError_attachesError verifies the error field is set.
func TestError_attachesError(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Error("Push failed", errors.New("connection refused"), map[string]interface{}{"batch": 50})

	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "connection refused", entry.ContextMap()["error"])
}

// TestErrorWithCode verifies the code field is set.
func TestErrorWithCode(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	ErrorWithCode("Sync cycle failed", "TRANSPORT_ERROR", errors.New("timeout"))

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "TRANSPORT_ERROR", ctx["code"])
	assert.Equal(t, "timeout", ctx["error"])
}

// TestLevelFiltering verifies entries below the core level are dropped.
func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	Debug("hidden")
	Info("hidden")
	Warn("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

// TestNamed verifies component names propagate.
func TestNamed(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Named("queue").Info("Enqueued")

	assert.Equal(t, "queue", logs.All()[0].LoggerName)
}

// TestParseLevel verifies level name mapping.
func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

// TestGet_defaultsWhenUninitialized verifies a logger is always available.
func TestGet_defaultsWhenUninitialized(t *testing.T) {
	setGlobal(nil)
	require.NotNil(t, Get())
	Info("still works")
}
