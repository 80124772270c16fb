package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestConfigure_JSONWithComponent(t *testing.T) {
	// GIVEN: A JSON logger at warn level
	var buf bytes.Buffer
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	logger := Configure(Config{Level: "warn", Output: &buf})

	// WHEN: Logging below and at the level through a component logger
	l := Component(logger, "sweep")
	l.Info().Msg("dropped")
	l.Warn().Int("failed", 2).Msg("kept")

	// THEN: Only the warning is written, tagged with the component
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "sweep", line["component"])
	assert.EqualValues(t, 2, line["failed"])
}
