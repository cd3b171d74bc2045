package kvdb

import (
	"context"
	"fmt"

	"github.com/pg-sharding/shardman/pkg/config"
)

//go:generate -command mockgen -source=kvdb/kvdb.go -destination=pkg/mock/kvdb/kvdb_mock.go -package=mock_kvdb

// KVDB is the transactional storage under the bucket table and the data
// spaces. Lookups of missing records return nil without an error.
type KVDB interface {
	GetBucket(ctx context.Context, id uint64) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]*Bucket, error)
	PutBucket(ctx context.Context, bucket *Bucket) error
	DeleteBucket(ctx context.Context, id uint64) error

	ListSpaces(ctx context.Context) ([]string, error)
	ScanBucket(ctx context.Context, space string, id uint64) ([]*Tuple, error)
	GetTuple(ctx context.Context, space string, key string) (*Tuple, error)
	PutTuple(ctx context.Context, tuple *Tuple) error
	DeleteTuple(ctx context.Context, space string, key string) error

	// Commit checks every guard of tx and applies its statements as one
	// atomic step. A failed guard yields ErrGuardFailed and no changes.
	Commit(ctx context.Context, tx *Transaction) error

	// Checkpoint makes everything committed so far durable.
	Checkpoint(ctx context.Context) error
	Close() error
}

func NewKVDB(cfg *config.StorageCfg) (KVDB, error) {
	switch cfg.Engine {
	case config.EngineMemory, "":
		return RestoreKVDB(cfg.BackupPath)
	case config.EngineBadger:
		return NewBadgerKVDB(cfg.DataDir)
	case config.EngineEtcd:
		return NewEtcdKVDB(cfg.EtcdAddr, cfg.EtcdPrefix)
	default:
		return nil, fmt.Errorf("kvdb engine %s is invalid", cfg.Engine)
	}
}
