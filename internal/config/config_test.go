package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "covenant", cfg.Name)
	assert.Equal(t, ".covenant/cache.db", cfg.Store.Path)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "covenant.yaml")

	cfg := DefaultConfig()
	cfg.Store.Path = "build/cache.db"
	cfg.Limits.MaxCompileSeconds = 60

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build/cache.db", loaded.Store.Path)
	assert.Equal(t, 60, loaded.Limits.MaxCompileSeconds)
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "covenant", loaded.Name)
}

func TestCompileLimits_Validate(t *testing.T) {
	bad := CompileLimits{MaxSourceBytes: 10, MaxCompileSeconds: 30}
	assert.Error(t, bad.Validate())
}

func TestGetCompileTimeoutFallsBackWhenUnset(t *testing.T) {
	cfg := &CovenantConfig{}
	assert.Equal(t, float64(30), cfg.GetCompileTimeout().Seconds())
}

func TestGetStorePruneAfterFallsBackOnBadDuration(t *testing.T) {
	cfg := &CovenantConfig{Store: StoreConfig{PruneAfter: "not-a-duration"}}
	assert.Equal(t, float64(168), cfg.GetStorePruneAfter().Hours())
}
