package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost:7183", cfg.Coordinator.StatServer)
	assert.Equal(t, []string{"localhost:7184"}, cfg.Coordinator.Shards)
	assert.Equal(t, 7183, cfg.Statistics.Port)
	assert.Equal(t, 7184, cfg.Storage.Port)
	assert.Equal(t, 7182, cfg.Analyzer.Port)
	assert.Equal(t, 7189, cfg.Dym.Port)
	assert.Equal(t, "BM25pff", cfg.Coordinator.DefaultScheme)
	assert.Equal(t, 20, cfg.Coordinator.DefaultPageSize)
	assert.Equal(t, 5*time.Second, cfg.Coordinator.PerShardTimeout)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yaml := `
coordinator:
  shards: ["a:1", "b:2"]
  perShardTimeout: 250ms
storage:
  serverId: 7
ingestion:
  numShards: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("SP_COORDINATOR_STAT_SERVER", "stats:9999")
	t.Setenv("SP_STORAGE_SHARD_INDEX", "1")
	t.Setenv("SP_COORDINATOR_TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.7")
	t.Setenv("SP_COORDINATOR_REQUIRE_API_KEY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Coordinator.Shards)
	assert.Equal(t, 250*time.Millisecond, cfg.Coordinator.PerShardTimeout)
	assert.Equal(t, 7, cfg.Storage.ServerID)
	assert.Equal(t, 1, cfg.Storage.ShardIndex)
	assert.Equal(t, "stats:9999", cfg.Coordinator.StatServer)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.7"}, cfg.Coordinator.TrustedProxies)
	assert.True(t, cfg.Coordinator.RequireAPIKey)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := defaultConfig()
	cfg.Coordinator.DefaultPageSize = 0
	cfg.Storage.ServerID = 70000
	cfg.Ingestion.NumShards = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaultPageSize")
	assert.Contains(t, err.Error(), "serverId")
	assert.Contains(t, err.Error(), "numShards")
}

func TestLoad_DevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	require.NoError(t, err)

	assert.Len(t, cfg.Coordinator.Shards, cfg.Ingestion.NumShards)
	assert.Equal(t, "localhost:7183", cfg.Storage.StatServer)
	assert.Equal(t, 60*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Coordinator.TrustedProxies)
}
