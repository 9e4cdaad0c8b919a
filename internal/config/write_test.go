// internal/config/write_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streamgrab", "config.toml")

	require.NoError(t, WriteDefault(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(content), "[download]")
	assert.Contains(t, string(content), "[download.templates]")
	assert.Contains(t, string(content), "${STREAMGRAB_MUSIC:-}")
}

func TestWriteDefault_LoadsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "extension_ignore", cfg.Download.Skip)
	assert.Equal(t, []string{"HI_RES_LOSSLESS"}, cfg.Auth.AlternateQualities)
}

func TestConfig_WriteRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 9000
	cfg.Quality.Audio = "LOSSLESS"

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, cfg.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, loaded.Server.Port)
	assert.Equal(t, "LOSSLESS", loaded.Quality.Audio)
	assert.Equal(t, cfg.Download.DelayMax, loaded.Download.DelayMax)
}
