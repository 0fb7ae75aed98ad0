package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataDir: /var/lib/quill
minimumFreeGB: 5
gcIntervalMinutes: 30
logLevel: debug
postgresDSN: postgres://localhost/quill
`)
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/quill", config.DataDir)
	assert.Equal(t, 5, config.MinimumFreeGB)
	assert.Equal(t, 30*time.Minute, config.GCInterval())
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "postgres://localhost/quill", config.PostgresDSN)
}

func TestLoadFillsPartialConfig(t *testing.T) {
	path := writeConfig(t, "dataDir: /srv/wiki\n")
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/wiki", config.DataDir)
	assert.Equal(t, Default().GCIntervalMinutes, config.GCIntervalMinutes)
	assert.Equal(t, Default().LogLevel, config.LogLevel)
}

func TestLoadZeroGCIntervalDisablesCompaction(t *testing.T) {
	// An absent key keeps the default; an explicit zero turns the
	// background compaction off entirely.
	path := writeConfig(t, "gcIntervalMinutes: 0\n")
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, config.GCIntervalMinutes)
	assert.Equal(t, time.Duration(0), config.GCInterval())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "dataDir: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	config := Default()
	require.NoError(t, config.Validate())

	config.MinimumFreeGB = -1
	assert.Error(t, config.Validate())

	config = Default()
	config.GCIntervalMinutes = 0
	assert.NoError(t, config.Validate(), "zero means compaction disabled")

	config.GCIntervalMinutes = -1
	assert.Error(t, config.Validate())
}
