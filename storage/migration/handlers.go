package migration

import (
	"context"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/rpc"
)

const ProcBucketSend = "bucket_send"

// StateFunc returns the current cluster state.
type StateFunc func() *topology.ClusterState

func requireMaster(cs *topology.ClusterState) error {
	if cs == nil || !cs.IsMaster() {
		return smerror.New(smerror.SHARDMAN_NON_MASTER, "instance is not a master of its replicaset")
	}
	return nil
}

// RecvHandler serves bucket_recv(bucket_id, from, rows).
func (c *Coordinator) RecvHandler(state StateFunc) rpc.Handler {
	return func(ctx context.Context, args rpc.Args) (any, error) {
		if err := requireMaster(state()); err != nil {
			return nil, err
		}
		var (
			id   uint64
			from string
			rows []*kvdb.Tuple
		)
		if err := args.Decode(0, &id); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &from); err != nil {
			return nil, err
		}
		if err := args.Decode(2, &rows); err != nil {
			return nil, err
		}
		return nil, c.BucketRecv(ctx, id, from, rows)
	}
}

// SendHandler serves bucket_send(bucket_id, destination).
func (c *Coordinator) SendHandler(state StateFunc) rpc.Handler {
	return func(ctx context.Context, args rpc.Args) (any, error) {
		cs := state()
		if err := requireMaster(cs); err != nil {
			return nil, err
		}
		var (
			id          uint64
			destination string
		)
		if err := args.Decode(0, &id); err != nil {
			return nil, err
		}
		if err := args.Decode(1, &destination); err != nil {
			return nil, err
		}
		return nil, c.BucketSend(ctx, cs, id, destination)
	}
}
