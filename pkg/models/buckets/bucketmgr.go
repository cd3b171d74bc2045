package buckets

import (
	"context"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/topology"
)

type BucketMgr interface {
	CheckState(ctx context.Context, cs *topology.ClusterState, id uint64, mode Mode) error

	GetBucket(ctx context.Context, id uint64) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)

	StartSending(ctx context.Context, id uint64, destination string) (*Bucket, error)
	MarkSent(ctx context.Context, sending *Bucket) error
	RollbackSending(ctx context.Context, sending *Bucket) error
	Receive(ctx context.Context, id uint64, from string, rows []*kvdb.Tuple) error

	CommitWrite(ctx context.Context, id uint64, tx *kvdb.Transaction) error

	ForceCreate(ctx context.Context, id uint64) error
	ForceCreateRange(ctx context.Context, first uint64, count uint64) error
	ForceDrop(ctx context.Context, id uint64) error

	Stat(ctx context.Context, id uint64) (*Bucket, error)
	Info(ctx context.Context) (*Info, error)
}
