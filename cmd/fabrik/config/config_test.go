package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(42), cfg.Seed)
	assert.False(t, cfg.Strict)
	assert.Equal(t, 0.7, cfg.OptionalFieldProbability)
	assert.Equal(t, Retries{Instance: 50, Unique: 100}, cfg.RetryLimits)
}

func TestLoadReturnsDefaultWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Config{
		Seed:                     7,
		Strict:                   true,
		OptionalFieldProbability: 0.3,
		RetryLimits:              Retries{Instance: 10, Unique: 20},
		PluginModules:            []string{"./plugins/foo.so"},
	}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: [this is not valid"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestFileJoinsDirAndConfigName(t *testing.T) {
	dir, err := Dir()
	require.NoError(t, err)
	file, err := File()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), file)
}
