package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mirror.yaml")
	content := `
base_url: "http://files.example.com/pub/"
output_dir: "/srv/mirror"
delay: 250ms
num_workers: 6
exclude_patterns:
  - '\.iso$'
max_depth: 4
state_dir: "/var/lib/index-mirror"
http_client_settings:
  max_idle_conns_per_host: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://files.example.com/pub/", cfg.BaseURL)
	assert.Equal(t, "/srv/mirror", cfg.OutputDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, 6, cfg.NumWorkers)
	assert.Equal(t, []string{`\.iso$`}, cfg.ExcludePatterns)
	assert.Equal(t, 4, cfg.MaxDepth)
	assert.Equal(t, "/var/lib/index-mirror", cfg.StateDir)
	assert.Equal(t, 8, cfg.HTTPClientSettings.MaxIdleConnsPerHost)
	assert.False(t, cfg.VerifyTLS, "unset keys keep defaults")
}

func TestLoadFile_KeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "min.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: http://h/\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "./downloaded_files", cfg.OutputDir)
	assert.Equal(t, time.Second, cfg.Delay)
	assert.Equal(t, 3, cfg.NumWorkers)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("num_workers: [oops"), 0644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestReportPath(t *testing.T) {
	cfg := &AppConfig{OutputDir: "out"}
	assert.Equal(t, filepath.Join("out", ReportFilename), cfg.ReportPath())
}
