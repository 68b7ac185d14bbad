package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warrendb.yaml")
	doc := `
storage:
  db_path: /var/lib/warrendb/data.db
  compression_default: zstd
  bloom_bits_per_key: 12
query:
  max_sample_probe: 500
  allow_full_scan: true
cdc:
  retention_keep: 100000
scheduler:
  interval_seconds: 30
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/warrendb/data.db", cfg.Storage.DBPath)
	require.Equal(t, "zstd", cfg.Storage.CompressionDefault)
	require.Equal(t, 12, cfg.Storage.BloomBitsPerKey)
	require.Equal(t, 500, cfg.Query.MaxSampleProbe)
	require.True(t, cfg.Query.AllowFullScan)
	require.EqualValues(t, 100000, cfg.CDC.RetentionKeep)
	require.Equal(t, 30, cfg.Scheduler.IntervalSeconds)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDefaultProjectsIntoEngineConfig(t *testing.T) {
	cfg := Default("/tmp/warrendb.db")
	econf := cfg.EngineConfig()
	require.Equal(t, "/tmp/warrendb.db", econf.StorePath)
	require.Equal(t, 1000, econf.MaxSampleProbe)
	require.False(t, econf.AllowFullScanDef)
}
