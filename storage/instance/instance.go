package instance

import (
	"context"
	"sort"
	"sync"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/config"
	meta_validators "github.com/pg-sharding/shardman/pkg/meta/validators"
	"github.com/pg-sharding/shardman/pkg/metrics"
	"github.com/pg-sharding/shardman/pkg/models/hashfunction"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/replication"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/pkg/smlog"
	"github.com/pg-sharding/shardman/storage/bucketmgr"
	"github.com/pg-sharding/shardman/storage/dispatch"
	"github.com/pg-sharding/shardman/storage/master"
	"github.com/pg-sharding/shardman/storage/migration"
)

// Instance is a storage node: the bucket table, the current cluster
// snapshot and the components that act on them.
type Instance struct {
	cfg *config.Node

	db      kvdb.KVDB
	holder  *topology.Holder
	tracker *replication.Tracker

	Mgr        *bucketmgr.Manager
	Coord      *migration.Coordinator
	Master     *master.Manager
	Dispatcher *dispatch.Dispatcher

	applyMu sync.Mutex
}

// NewInstance builds a node over db. Writes to db are counted by the
// replication tracker, so db must not be written to behind its back.
func NewInstance(cfg *config.Node, db kvdb.KVDB, dialer rpc.Dialer) (*Instance, error) {
	hf, err := hashfunction.HashFunctionByName(cfg.HashFunction)
	if err != nil {
		return nil, err
	}

	tracker := replication.NewTracker(cfg.InstanceUUID)
	tracked := tracker.Track(db)

	mgr := bucketmgr.NewManager(tracked)

	registry := dispatch.NewRegistry()
	dispatch.NewTupleProcedures(tracked, mgr, hf, cfg.BucketCount).Register(registry)

	return &Instance{
		cfg:        cfg,
		db:         tracked,
		holder:     topology.NewHolder(),
		tracker:    tracker,
		Mgr:        mgr,
		Coord:      migration.NewCoordinator(mgr, tracked, dialer),
		Master:     master.NewManager(tracker, cfg.DemotionTimeout, cfg.SyncPollInterval),
		Dispatcher: dispatch.NewDispatcher(mgr, registry, smlog.NewCallLogger(cfg.LogMinDurationCall)),
	}, nil
}

// State returns the current cluster snapshot, nil before the first
// sharding map is applied.
func (i *Instance) State() *topology.ClusterState {
	return i.holder.Load()
}

func (i *Instance) Tracker() *replication.Tracker {
	return i.tracker
}

// ApplyShardingMap validates raw, builds a new cluster snapshot and
// publishes it. An invalid map leaves the current snapshot in place.
// When the node loses mastership the new snapshot, which refuses writes,
// is published before the demotion barrier runs.
func (i *Instance) ApplyShardingMap(ctx context.Context, raw any) error {
	i.applyMu.Lock()
	defer i.applyMu.Unlock()

	sm, err := meta_validators.ParseShardingMap(raw)
	if err != nil {
		smlog.Zero.Error().Err(err).Msg("sharding map rejected")
		return err
	}

	prev := i.holder.Load()
	next, err := topology.Build(sm, prev, i.cfg.InstanceUUID)
	if err != nil {
		smlog.Zero.Error().Err(err).Msg("sharding map rejected")
		return err
	}

	i.holder.Swap(next)
	next.ReleaseStale()
	metrics.SetClusterState(next.Version, next.IsMaster())
	i.tracker.SetDownstreams(downstreams(next))

	smlog.Zero.Info().
		Uint64("version", next.Version).
		Str("replicaset", next.LocalReplicaset.UUID).
		Str("role", next.Role().String()).
		Int("replicasets", len(next.Replicasets)).
		Msg("sharding map applied")

	return i.Master.OnRoleChange(ctx, prev, next)
}

// ReloadShardingMap reads the sharding map file and applies it.
func (i *Instance) ReloadShardingMap(ctx context.Context) error {
	raw, err := config.LoadShardingMap(i.cfg.ShardingMapPath)
	if err != nil {
		return err
	}
	return i.ApplyShardingMap(ctx, raw)
}

// downstreams lists the other servers of the local replicaset.
func downstreams(cs *topology.ClusterState) []string {
	ret := make([]string, 0, len(cs.LocalReplicaset.Servers))
	for uuid := range cs.LocalReplicaset.Servers {
		if uuid != cs.LocalServer.UUID {
			ret = append(ret, uuid)
		}
	}
	sort.Strings(ret)
	return ret
}

func (i *Instance) Checkpoint(ctx context.Context) error {
	return i.db.Checkpoint(ctx)
}

// Close checkpoints the storage and drops all connections.
func (i *Instance) Close() error {
	if cs := i.holder.Load(); cs != nil {
		cs.Close()
	}
	if err := i.db.Checkpoint(context.Background()); err != nil {
		smlog.Zero.Error().Err(err).Msg("final checkpoint failed")
	}
	return i.db.Close()
}
