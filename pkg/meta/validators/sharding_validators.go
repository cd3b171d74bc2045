package meta_validators

import (
	"sort"

	"github.com/pg-sharding/shardman/pkg/config"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
)

// ValidateShardingMap checks the structural and uniqueness invariants of a raw
// sharding map before any topology is built from it.
//
// The map is walked once, replicasets and servers in sorted key order, so the
// reported violation is deterministic. Per server the checks run in rule
// order: field types, single master, global uri uniqueness, global uuid
// uniqueness. The first violation is returned.
//
// Parameters:
// - raw: the decoded sharding map (map[string]any from json/toml, map[any]any from yaml).
//
// Returns:
// - error: an *smerror.SmError with code SHARDMAN_CONFIG_ERROR, or nil.
func ValidateShardingMap(raw any) error {
	_, err := parseShardingMap(raw)
	return err
}

// ParseShardingMap validates raw and converts it to a typed sharding map.
func ParseShardingMap(raw any) (config.ShardingMap, error) {
	return parseShardingMap(raw)
}

func parseShardingMap(raw any) (config.ShardingMap, error) {
	top, ok, err := toMapping(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, smerror.NewConfigError(smerror.NotAMapping, raw)
	}

	uris := map[string]struct{}{}
	uuids := map[string]struct{}{}
	sm := make(config.ShardingMap, len(top))

	for _, rsUUID := range sortedKeys(top) {
		rsRaw, ok, err := toMapping(top[rsUUID])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, smerror.NewConfigError(smerror.ReplicasetNotATable, rsUUID)
		}

		servers, ok, err := toMapping(rsRaw["servers"])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, smerror.NewConfigError(smerror.ServersNotATable, rsUUID)
		}

		rs := &config.ReplicasetCfg{
			Servers: make(map[string]*config.ServerCfg, len(servers)),
		}
		hasMaster := false

		for _, srvUUID := range sortedKeys(servers) {
			srv, err := parseServer(srvUUID, servers[srvUUID])
			if err != nil {
				return nil, err
			}

			if srv.Master {
				if hasMaster {
					return nil, smerror.NewConfigError(smerror.MultipleMasters, rsUUID)
				}
				hasMaster = true
			}

			if _, dup := uris[srv.URI]; dup {
				return nil, smerror.NewConfigError(smerror.DuplicateUri, srv.URI)
			}
			uris[srv.URI] = struct{}{}

			if _, dup := uuids[srvUUID]; dup {
				return nil, smerror.NewConfigError(smerror.DuplicateUuid, srvUUID)
			}
			uuids[srvUUID] = struct{}{}

			rs.Servers[srvUUID] = srv
		}

		sm[rsUUID] = rs
	}

	return sm, nil
}

func parseServer(uuid string, raw any) (*config.ServerCfg, error) {
	desc, ok, err := toMapping(raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, smerror.NewConfigError(smerror.ServerNotATable, uuid)
	}

	uri, ok := desc["uri"].(string)
	if !ok {
		return nil, smerror.NewConfigError(smerror.UriNotString, desc["uri"])
	}
	name, ok := desc["name"].(string)
	if !ok {
		return nil, smerror.NewConfigError(smerror.NameNotString, desc["name"])
	}

	master := false
	if v, present := desc["master"]; present && v != nil {
		b, ok := v.(bool)
		if !ok {
			return nil, smerror.NewConfigError(smerror.MasterNotBoolean, v)
		}
		master = b
	}

	return &config.ServerCfg{
		URI:    uri,
		Name:   name,
		Master: master,
	}, nil
}

// toMapping normalizes the map flavours produced by the config decoders.
// The second result is false when v is not a mapping at all.
func toMapping(v any) (map[string]any, bool, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, true, nil
	case map[any]any:
		res := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, true, smerror.NewConfigError(smerror.UuidNotString, k)
			}
			res[ks] = val
		}
		return res, true, nil
	default:
		return nil, false, nil
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
