package instance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/replication"
	"github.com/pg-sharding/shardman/pkg/rpc"
	"github.com/pg-sharding/shardman/storage/migration"
)

const (
	ProcBucketStat        = "bucket_stat"
	ProcBucketForceCreate = "bucket_force_create"
	ProcBucketForceDrop   = "bucket_force_drop"
	ProcBucketsInfo       = "buckets_info"
	ProcCall              = "call"
	ProcSync              = "sync"
	ProcReplicationAck    = "replication.ack"
)

// Register exposes the node procedures on srv.
func (i *Instance) Register(srv *rpc.Server) {
	srv.Register(migration.ProcBucketRecv, i.Coord.RecvHandler(i.State))
	srv.Register(migration.ProcBucketSend, i.Coord.SendHandler(i.State))
	srv.Register(ProcBucketStat, i.bucketStat)
	srv.Register(ProcBucketForceCreate, i.bucketForceCreate)
	srv.Register(ProcBucketForceDrop, i.bucketForceDrop)
	srv.Register(ProcBucketsInfo, i.bucketsInfo)
	srv.Register(ProcCall, i.call)
	srv.Register(ProcSync, i.sync)
	srv.Register(ProcReplicationAck, i.replicationAck)
}

func (i *Instance) masterState() (*topology.ClusterState, error) {
	cs := i.State()
	if cs == nil || !cs.IsMaster() {
		return nil, smerror.New(smerror.SHARDMAN_NON_MASTER, "instance is not a master of its replicaset")
	}
	return cs, nil
}

// bucket_stat(bucket_id)
func (i *Instance) bucketStat(ctx context.Context, args rpc.Args) (any, error) {
	var id uint64
	if err := args.Decode(0, &id); err != nil {
		return nil, err
	}
	return i.Mgr.Stat(ctx, id)
}

// bucket_force_create(first_bucket_id[, count])
func (i *Instance) bucketForceCreate(ctx context.Context, args rpc.Args) (any, error) {
	if _, err := i.masterState(); err != nil {
		return nil, err
	}
	var first uint64
	if err := args.Decode(0, &first); err != nil {
		return nil, err
	}
	count := uint64(1)
	if args.Len() > 1 {
		if err := args.Decode(1, &count); err != nil {
			return nil, err
		}
	}
	if count == 1 {
		return nil, i.Mgr.ForceCreate(ctx, first)
	}
	return nil, i.Mgr.ForceCreateRange(ctx, first, count)
}

// bucket_force_drop(bucket_id)
func (i *Instance) bucketForceDrop(ctx context.Context, args rpc.Args) (any, error) {
	if _, err := i.masterState(); err != nil {
		return nil, err
	}
	var id uint64
	if err := args.Decode(0, &id); err != nil {
		return nil, err
	}
	return nil, i.Mgr.ForceDrop(ctx, id)
}

func (i *Instance) bucketsInfo(ctx context.Context, _ rpc.Args) (any, error) {
	return i.Mgr.Info(ctx)
}

// call(bucket_id, mode, procedure[, args])
func (i *Instance) call(ctx context.Context, args rpc.Args) (any, error) {
	var (
		id       uint64
		rawMode  string
		name     string
		procArgs []json.RawMessage
	)
	if err := args.Decode(0, &id); err != nil {
		return nil, err
	}
	if err := args.Decode(1, &rawMode); err != nil {
		return nil, err
	}
	if err := args.Decode(2, &name); err != nil {
		return nil, err
	}
	if args.Len() > 3 {
		if err := args.Decode(3, &procArgs); err != nil {
			return nil, err
		}
	}
	mode, err := buckets.ParseMode(rawMode)
	if err != nil {
		return nil, smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "%s", err)
	}
	return i.Dispatcher.Call(ctx, i.State(), id, mode, name, rpc.Args(procArgs))
}

// sync([timeout]) waits for the replicas to apply every local write.
// The timeout is a duration string and defaults to the demotion timeout.
func (i *Instance) sync(ctx context.Context, args rpc.Args) (any, error) {
	timeout := i.cfg.DemotionTimeout
	if args.Len() > 0 {
		var raw string
		if err := args.Decode(0, &raw); err != nil {
			return nil, err
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "invalid sync timeout %q", raw)
		}
		timeout = d
	}
	return nil, i.Master.Sync(ctx, timeout)
}

// replication.ack(server_uuid, vclock)
func (i *Instance) replicationAck(_ context.Context, args rpc.Args) (any, error) {
	var (
		replica string
		vc      replication.VClock
	)
	if err := args.Decode(0, &replica); err != nil {
		return nil, err
	}
	if err := args.Decode(1, &vc); err != nil {
		return nil, err
	}
	i.tracker.Ack(replica, vc)
	return nil, nil
}
