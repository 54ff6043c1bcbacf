package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	path := filepath.Join(t.TempDir(), "status-bot.log")
	Init(zerolog.InfoLevel, path)

	log.Debug().Msg("hidden")
	log.Info().Str("source", "sensor").Msg("Status monitor starting")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "sensor", entry["source"])
	assert.Contains(t, entry, "time")
}

func TestInit_BadPathPanics(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	assert.Panics(t, func() {
		Init(zerolog.InfoLevel, filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	})
}
