package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		isDev bool
		want  slog.Level
	}{
		{"debug", false, slog.LevelDebug},
		{"INFO", true, slog.LevelInfo},
		{"warning", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"", true, slog.LevelDebug},
		{"", false, slog.LevelInfo},
		{"verbose", false, slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.name, tt.isDev))
		})
	}
}

func TestInit_ProductionWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := Init(Options{Service: "api", Output: &buf})

	log.Info("slot reserved", "goal_id", "g1")
	log.Debug("hidden at info level")

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
	assert.Equal(t, "slot reserved", record["msg"])
	assert.Equal(t, "api", record["service"])
	assert.Equal(t, "g1", record["goal_id"])
}
