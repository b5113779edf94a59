package rdpconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithProfileFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")

	profile := `
server:
  port: "9443"
rdp:
  defaultWidth: 1920
  defaultHeight: 1080
client:
  clientName: kiosk-7
  colorDepth: 16
  codecs:
    - remotefx
    - qoi
  autologon: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(profile), 0o600))

	config, err := LoadWithOverrides(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, "9443", config.Server.Port)
	assert.Equal(t, 1920, config.RDP.DefaultWidth)
	assert.Equal(t, 1080, config.RDP.DefaultHeight)
	assert.Equal(t, "kiosk-7", config.Client.ClientName)
	assert.Equal(t, 16, config.Client.ColorDepth)
	assert.Equal(t, []string{"remotefx", "qoi"}, config.Client.Codecs)
	assert.True(t, config.Client.Autologon)
	assert.Equal(t, "debug", config.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 3840, config.RDP.MaxWidth)
}

func TestLoadProfileEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")

	require.NoError(t, os.WriteFile(path, []byte("client:\n  colorDepth: 16\n"), 0o600))

	t.Setenv("CLIENT_COLOR_DEPTH", "24")

	config, err := LoadWithOverrides(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, 24, config.Client.ColorDepth)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadWithOverrides(LoadOptions{ConfigFile: "/nonexistent/profile.yaml"})
	assert.Error(t, err)
}

func TestLoadProfileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")

	require.NoError(t, os.WriteFile(path, []byte("client: [not a map"), 0o600))

	_, err := LoadWithOverrides(LoadOptions{ConfigFile: path})
	assert.Error(t, err)
}
