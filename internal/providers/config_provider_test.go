package providers

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"usd/internal/structures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYaml = `
webServer:
  host: 127.0.0.1
  port: 8091
storage:
  dir: /tmp/usd
logger:
  level: debug
  mode: 0644
  dir: /tmp/usd/logs
collector:
  interval: 10m
uploader:
  batchLimit: 100
settings:
  endpointUrl: https://ingest.example.com
`

func TestNewConfigProvider_ReadsYamlAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYaml), 0644))

	conf, err := NewConfigProvider(&structures.CliFlags{ConfigPath: path, DebugMode: true})
	require.NoError(t, err)

	assert.Equal(t, AppName, conf.AppName)
	assert.True(t, conf.Debug)
	assert.Equal(t, 10*time.Minute, conf.Collector.Interval)
	assert.Equal(t, 15*time.Minute, conf.Collector.DefaultLookback)
	assert.Equal(t, time.Hour, conf.Uploader.Interval)
	assert.Equal(t, 100, conf.Uploader.BatchLimit)
	assert.Equal(t, "/api/ingest", conf.Uploader.IngestPath)
	assert.Equal(t, "X-API-Key", conf.Uploader.AuthHeader)
	assert.Equal(t, "https://ingest.example.com", conf.Settings.EndpointURL)
	assert.Equal(t, "User", conf.Settings.DisplayName)
}

func TestNewConfigProvider_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYaml), 0644))
	t.Setenv("USD_API_KEY", "secret")

	conf, err := NewConfigProvider(&structures.CliFlags{ConfigPath: path})
	require.NoError(t, err)
	assert.Equal(t, "secret", conf.Settings.APIKey)
}

func TestNewConfigProvider_MissingFile(t *testing.T) {
	_, err := NewConfigProvider(&structures.CliFlags{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}
