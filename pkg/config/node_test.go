package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadNodeCfgYaml(t *testing.T) {
	assert := assert.New(t)

	path := writeFile(t, "node.yaml", `
log_level: debug
instance_uuid: a
sharding_map: /etc/shardman/sharding.yaml
listen_addr: localhost:4000
demotion_timeout: 3s
storage:
  engine: badger
  data_dir: /var/lib/shardman
rpc:
  call_timeout: 2s
`)

	_, err := LoadNodeCfg(path)
	assert.NoError(err)

	cfg := NodeConfig()
	assert.Equal("debug", cfg.LogLevel)
	assert.Equal("a", cfg.InstanceUUID)
	assert.Equal("localhost:4000", cfg.ListenAddr)
	assert.Equal(3*time.Second, cfg.DemotionTimeout)
	assert.Equal(EngineBadger, cfg.Storage.Engine)
	assert.Equal(2*time.Second, cfg.RPC.CallTimeout)

	// defaults
	assert.Equal(uint64(DefaultBucketCount), cfg.BucketCount)
	assert.Equal(DefaultSyncPollInterval, cfg.SyncPollInterval)
	assert.Equal(DefaultDialTimeout, cfg.RPC.DialTimeout)
	assert.Equal(uint64(DefaultReconnectRetries), cfg.RPC.ReconnectRetries)
	assert.Equal(time.Duration(-1), cfg.LogMinDurationCall)
}

func TestLoadNodeCfgToml(t *testing.T) {
	assert := assert.New(t)

	path := writeFile(t, "node.toml", `
instance_uuid = "b"
sharding_map = "sharding.toml"
bucket_count = 16

[storage]
engine = "etcd"
etcd_addr = "localhost:2379"
`)

	_, err := LoadNodeCfg(path)
	assert.NoError(err)
	assert.Equal("b", NodeConfig().InstanceUUID)
	assert.Equal(uint64(16), NodeConfig().BucketCount)
	assert.Equal(EngineEtcd, NodeConfig().Storage.Engine)
	assert.Equal("localhost:2379", NodeConfig().Storage.EtcdAddr)
}

func TestLoadNodeCfgRequiresInstance(t *testing.T) {
	path := writeFile(t, "node.json", `{"sharding_map": "x.yaml"}`)

	_, err := LoadNodeCfg(path)
	assert.Error(t, err)
}

func TestLoadNodeCfgUnknownFormat(t *testing.T) {
	path := writeFile(t, "node.ini", `instance_uuid=a`)

	_, err := LoadNodeCfg(path)
	assert.ErrorContains(t, err, "unknown config format type")
}

func TestLoadShardingMap(t *testing.T) {
	assert := assert.New(t)

	yamlPath := writeFile(t, "sharding.yaml", `
rs1:
  servers:
    a: {uri: "u1", name: "n1", master: true}
`)
	raw, err := LoadShardingMap(yamlPath)
	assert.NoError(err)
	top, ok := raw.(map[any]any)
	assert.True(ok)
	assert.Contains(top, "rs1")

	jsonPath := writeFile(t, "sharding.json", `{"rs1": {"servers": {"a": {"uri": "u1", "name": "n1"}}}}`)
	raw, err = LoadShardingMap(jsonPath)
	assert.NoError(err)
	_, ok = raw.(map[string]any)
	assert.True(ok)

	jsonList := writeFile(t, "list.json", `[1, 2]`)
	raw, err = LoadShardingMap(jsonList)
	assert.NoError(err)
	_, ok = raw.([]any)
	assert.True(ok)
}
