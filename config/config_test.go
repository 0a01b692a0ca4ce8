package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailrouter/config"
)

const sampleYAML = `
env:
  env: test
  serviceName: trailrouter
  log:
    pretty: true
    level: debug
graph:
  pbfPath: /data/region.osm.pbf
  workers: 4
  marginM: 1000
cache:
  dir: /data/cache
  capacity: 20
  maxBboxAreaKm2: 10000
routing:
  pavedWeight: 0.3
  populationWeight: 0.5
loop:
  defaultCandidateCount: 5
  defaultToleranceKm: 0.5
`

func writeConfigFile(t *testing.T, dir, env string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, env+".yaml"), []byte(sampleYAML), 0o644))
}

func TestLoadWithEnv_ParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "test")

	t.Chdir(dir)

	cfg, err := config.LoadWithEnv[config.Config]("test")
	require.NoError(t, err)

	assert.Equal(t, "trailrouter", cfg.Env.ServiceName)
	assert.Equal(t, "/data/region.osm.pbf", cfg.Graph.PBFPath)
	assert.Equal(t, 4, cfg.Graph.Workers)
	assert.Equal(t, 10000.0, cfg.Cache.MaxBBoxAreaKM2)
	assert.InDelta(t, 0.3, cfg.Routing.PavedWeight, 1e-9)
	assert.Equal(t, 5, cfg.LoopConfig.DefaultCandidateCount)
}

func TestLoadWithEnv_MissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := config.LoadWithEnv[config.Config]("nonexistent")
	assert.Error(t, err)
}

func TestConfig_ValidateRejectsNegativeBBoxArea(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.MaxBBoxAreaKM2 = -1

	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsNegativeCapacity(t *testing.T) {
	cfg := &config.Config{}
	cfg.Cache.Capacity = -5

	assert.Error(t, cfg.Validate())
}

func TestConfig_ValidateAcceptsZeroValues(t *testing.T) {
	cfg := &config.Config{}

	assert.NoError(t, cfg.Validate())
}
