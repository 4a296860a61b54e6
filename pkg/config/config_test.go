package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesComponentDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 10000, c.PathCacheCeiling)
	assert.Equal(t, 50, c.MaxSnapshots)
	assert.Equal(t, "127.0.0.1:9090", c.MetricsAddr)
}

func TestRegisterFlagsOverridesDefault(t *testing.T) {
	c := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{"--path-cache-ceiling=500", "--log-json"}))
	assert.Equal(t, 500, c.PathCacheCeiling)
	assert.True(t, c.LogJSON)
}

func TestLoadFileMissingReturnsBase(t *testing.T) {
	base := Default()
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)
}

func TestLoadFileOverlaysFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corestate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_snapshots: 5\nlog_level: debug\n"), 0o644))

	cfg, err := LoadFile(path, Default())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxSnapshots)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, Default().PathCacheCeiling, cfg.PathCacheCeiling)
}

func TestThresholdsReflectsAlertFields(t *testing.T) {
	c := Default()
	c.AlertErrorRate = 42
	th := c.Thresholds()
	assert.Equal(t, 42.0, th.ErrorRatePct)
}
