package config

import (
	"os"

	"golang.org/x/xerrors"
)

// ShardingMap is a validated sharding configuration: replicaset uuid to replicaset.
type ShardingMap map[string]*ReplicasetCfg

type ReplicasetCfg struct {
	Servers map[string]*ServerCfg `json:"servers" toml:"servers" yaml:"servers"`
}

type ServerCfg struct {
	URI    string `json:"uri" toml:"uri" yaml:"uri"`
	Name   string `json:"name" toml:"name" yaml:"name"`
	Master bool   `json:"master" toml:"master" yaml:"master"`
}

// LoadShardingMap reads a sharding map file without interpreting it.
// The result must go through validation before it is used, so the
// decoded value is returned as is: yaml yields map[any]any, json and
// toml yield map[string]any.
func LoadShardingMap(path string) (any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open sharding map: %w", err)
	}
	defer closeFile(file)

	var raw any
	if err := initConfig(file, &raw); err != nil {
		return nil, xerrors.Errorf("decode sharding map %s: %w", path, err)
	}
	return raw, nil
}
