package config

import (
	"encoding/json"
	"os"
	"time"

	"golang.org/x/xerrors"
)

type StorageEngine string

const (
	EngineMemory = StorageEngine("memory")
	EngineBadger = StorageEngine("badger")
	EngineEtcd   = StorageEngine("etcd")
)

type StorageCfg struct {
	Engine StorageEngine `json:"engine" toml:"engine" yaml:"engine"`
	// DataDir is the badger directory.
	DataDir string `json:"data_dir" toml:"data_dir" yaml:"data_dir"`
	// BackupPath is where the memory engine checkpoints its state.
	BackupPath string `json:"backup_path" toml:"backup_path" yaml:"backup_path"`
	EtcdAddr   string `json:"etcd_addr" toml:"etcd_addr" yaml:"etcd_addr"`
	// EtcdPrefix namespaces keys of one replicaset inside a shared etcd.
	EtcdPrefix string `json:"etcd_prefix" toml:"etcd_prefix" yaml:"etcd_prefix"`
}

type RPCCfg struct {
	CallTimeout      time.Duration `json:"call_timeout" toml:"call_timeout" yaml:"call_timeout"`
	DialTimeout      time.Duration `json:"dial_timeout" toml:"dial_timeout" yaml:"dial_timeout"`
	ReconnectRetries uint64        `json:"reconnect_retries" toml:"reconnect_retries" yaml:"reconnect_retries"`
	ReconnectBackoff time.Duration `json:"reconnect_backoff" toml:"reconnect_backoff" yaml:"reconnect_backoff"`
}

type Node struct {
	LogLevel      string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile       string `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLogging bool   `json:"pretty_logging" toml:"pretty_logging" yaml:"pretty_logging"`

	InstanceUUID    string `json:"instance_uuid" toml:"instance_uuid" yaml:"instance_uuid"`
	ShardingMapPath string `json:"sharding_map" toml:"sharding_map" yaml:"sharding_map"`

	ListenAddr string `json:"listen_addr" toml:"listen_addr" yaml:"listen_addr"`
	HttpAddr   string `json:"http_addr" toml:"http_addr" yaml:"http_addr"`

	BucketCount  uint64 `json:"bucket_count" toml:"bucket_count" yaml:"bucket_count"`
	HashFunction string `json:"hash_function" toml:"hash_function" yaml:"hash_function"`

	DemotionTimeout    time.Duration `json:"demotion_timeout" toml:"demotion_timeout" yaml:"demotion_timeout"`
	SyncPollInterval   time.Duration `json:"sync_poll_interval" toml:"sync_poll_interval" yaml:"sync_poll_interval"`
	LogMinDurationCall time.Duration `json:"log_min_duration_call" toml:"log_min_duration_call" yaml:"log_min_duration_call"`
	CheckpointInterval time.Duration `json:"checkpoint_interval" toml:"checkpoint_interval" yaml:"checkpoint_interval"`

	Storage      StorageCfg `json:"storage" toml:"storage" yaml:"storage"`
	RPC          RPCCfg     `json:"rpc" toml:"rpc" yaml:"rpc"`
	JaegerConfig JaegerCfg  `json:"jaeger" toml:"jaeger" yaml:"jaeger"`
}

const (
	DefaultBucketCount        = 3000
	DefaultDemotionTimeout    = 10 * time.Second
	DefaultSyncPollInterval   = 10 * time.Millisecond
	DefaultCheckpointInterval = time.Minute
	DefaultCallTimeout        = 10 * time.Second
	DefaultDialTimeout        = 3 * time.Second
	DefaultReconnectRetries   = 7
	DefaultReconnectBackoff   = 500 * time.Millisecond
)

var cfgNode Node

// ApplyDefaults fills unset fields with their default values.
func (n *Node) ApplyDefaults() {
	if n.LogLevel == "" {
		n.LogLevel = "info"
	}
	if n.ListenAddr == "" {
		n.ListenAddr = "localhost:3301"
	}
	if n.BucketCount == 0 {
		n.BucketCount = DefaultBucketCount
	}
	if n.HashFunction == "" {
		n.HashFunction = "murmur"
	}
	if n.DemotionTimeout == 0 {
		n.DemotionTimeout = DefaultDemotionTimeout
	}
	if n.SyncPollInterval == 0 {
		n.SyncPollInterval = DefaultSyncPollInterval
	}
	if n.CheckpointInterval == 0 {
		n.CheckpointInterval = DefaultCheckpointInterval
	}
	if n.LogMinDurationCall == 0 {
		n.LogMinDurationCall = -1
	}
	if n.Storage.Engine == "" {
		n.Storage.Engine = EngineMemory
	}
	if n.RPC.CallTimeout == 0 {
		n.RPC.CallTimeout = DefaultCallTimeout
	}
	if n.RPC.DialTimeout == 0 {
		n.RPC.DialTimeout = DefaultDialTimeout
	}
	if n.RPC.ReconnectRetries == 0 {
		n.RPC.ReconnectRetries = DefaultReconnectRetries
	}
	if n.RPC.ReconnectBackoff == 0 {
		n.RPC.ReconnectBackoff = DefaultReconnectBackoff
	}
}

// LoadNodeCfg loads the storage node configuration from the specified file path.
//
// Parameters:
//   - cfgPath (string): The path of the configuration file.
//
// Returns:
//   - string: JSON-formatted config
//   - error: An error if any occurred during the loading process.
func LoadNodeCfg(cfgPath string) (string, error) {
	var ncfg Node
	file, err := os.Open(cfgPath)
	if err != nil {
		return "", xerrors.Errorf("open node config: %w", err)
	}
	defer closeFile(file)

	if err := initConfig(file, &ncfg); err != nil {
		return "", xerrors.Errorf("decode node config %s: %w", cfgPath, err)
	}
	ncfg.ApplyDefaults()

	if ncfg.InstanceUUID == "" {
		return "", xerrors.Errorf("instance_uuid is required in %s", cfgPath)
	}
	if ncfg.ShardingMapPath == "" {
		return "", xerrors.Errorf("sharding_map is required in %s", cfgPath)
	}

	configBytes, err := json.MarshalIndent(&ncfg, "", "  ")
	if err != nil {
		return "", err
	}

	cfgNode = ncfg
	return string(configBytes), nil
}

// NodeConfig returns a pointer to the storage node configuration.
//
// Returns:
//   - *Node: a pointer to the Node configuration.
func NodeConfig() *Node {
	return &cfgNode
}
