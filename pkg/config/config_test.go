package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := LoadFromEnv()
	require.Equal(t, "serializable", cfg.Isolation.Level)
	require.True(t, cfg.Isolation.EnableOptValidation)
	require.True(t, cfg.Pools.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	os.Setenv("GTRANDB_ISOLATION_LEVEL", "snapshot")
	os.Setenv("GTRANDB_POOL_SIZE", "64")
	defer os.Unsetenv("GTRANDB_ISOLATION_LEVEL")
	defer os.Unsetenv("GTRANDB_POOL_SIZE")

	cfg := LoadFromEnv()
	require.Equal(t, "snapshot", cfg.Isolation.Level)
	require.Equal(t, 64, cfg.Pools.Size)
}

func TestValidateRejectsUnknownIsolationLevel(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Isolation.Level = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroPoolSize(t *testing.T) {
	cfg := LoadFromEnv()
	cfg.Pools.Size = 0
	require.Error(t, cfg.Validate())
}

func TestStringOmitsNothingSensitive(t *testing.T) {
	cfg := LoadFromEnv()
	require.Contains(t, cfg.String(), "Isolation: serializable")
}
