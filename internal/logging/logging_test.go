package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRun(NewLogger(&buf), "abc123")
	logger.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "abc123", entry["run"])
	assert.Equal(t, "test", entry["component"])
}

func TestNewLoggerMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	l := NewLogger(&a, &b)
	l.Warn().Msg("twice")
	assert.Contains(t, a.String(), "twice")
	assert.Contains(t, b.String(), "twice")
}

func TestResolveLevel(t *testing.T) {
	t.Setenv(LevelEnv, "")

	level, err := resolveLevel(Options{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, level)

	level, err = resolveLevel(Options{Verbose: true})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	level, err = resolveLevel(Options{Verbose: true, Level: "trace"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, level)

	_, err = resolveLevel(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestResolveLevelEnvWins(t *testing.T) {
	t.Setenv(LevelEnv, "WARN")

	level, err := resolveLevel(Options{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)
}
