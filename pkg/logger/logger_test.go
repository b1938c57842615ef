package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_WritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})

	l.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		level    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.level))
		})
	}
}

func TestNew_SetsGlobalLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	New(Config{Level: "error", Output: &bytes.Buffer{}})

	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestComponent_TagsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New(Config{Level: "info", Output: &buf}), "heartbeat")

	l.Info().Msg("tick")

	assert.Contains(t, buf.String(), `"component":"heartbeat"`)
}
