package dispatch

import (
	"context"
	"encoding/json"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/hashfunction"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/rpc"
)

const (
	ProcTupleReplace = "tuple.replace"
	ProcTupleSelect  = "tuple.select"
	ProcTupleDelete  = "tuple.delete"
	ProcTupleScan    = "tuple.scan"
)

// TupleProcedures serves the built-in data procedures over kvdb spaces.
// Every key must hash into the bucket the call was admitted for. Writes
// commit through the bucket manager so they land only while the bucket
// is still ACTIVE.
type TupleProcedures struct {
	db          kvdb.KVDB
	mgr         buckets.BucketMgr
	hf          hashfunction.HashFunctionType
	bucketCount uint64
}

func NewTupleProcedures(db kvdb.KVDB, mgr buckets.BucketMgr, hf hashfunction.HashFunctionType, bucketCount uint64) *TupleProcedures {
	return &TupleProcedures{
		db:          db,
		mgr:         mgr,
		hf:          hf,
		bucketCount: bucketCount,
	}
}

// Register adds the tuple procedures to r.
func (p *TupleProcedures) Register(r *Registry) {
	r.Register(ProcTupleReplace, buckets.Write, p.replace)
	r.Register(ProcTupleDelete, buckets.Write, p.delete)
	r.Register(ProcTupleSelect, buckets.Read, p.get)
	r.Register(ProcTupleScan, buckets.Read, p.scan)
}

func (p *TupleProcedures) spaceAndKey(bucketID uint64, args rpc.Args) (string, string, error) {
	var space, key string
	if err := args.Decode(0, &space); err != nil {
		return "", "", err
	}
	if err := args.Decode(1, &key); err != nil {
		return "", "", err
	}
	if space == "" || key == "" {
		return "", "", smerror.New(smerror.SHARDMAN_INVALID_REQUEST, "space and key must not be empty")
	}

	owner, err := hashfunction.BucketID(key, p.hf, p.bucketCount)
	if err != nil {
		return "", "", smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "key %q: %s", key, err)
	}
	if owner != bucketID {
		return "", "", smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "key %q belongs to bucket %d, not %d", key, owner, bucketID)
	}
	return space, key, nil
}

// replace(space, key, data)
func (p *TupleProcedures) replace(ctx context.Context, bucketID uint64, args rpc.Args) (any, error) {
	space, key, err := p.spaceAndKey(bucketID, args)
	if err != nil {
		return nil, err
	}
	var data json.RawMessage
	if err := args.Decode(2, &data); err != nil {
		return nil, err
	}

	tuple := kvdb.NewTuple(space, key, bucketID, data)
	if err := p.mgr.CommitWrite(ctx, bucketID, kvdb.NewTransaction().PutTuple(tuple)); err != nil {
		return nil, err
	}
	return tuple, nil
}

// select(space, key) returns the tuple or null.
func (p *TupleProcedures) get(ctx context.Context, bucketID uint64, args rpc.Args) (any, error) {
	space, key, err := p.spaceAndKey(bucketID, args)
	if err != nil {
		return nil, err
	}
	tuple, err := p.db.GetTuple(ctx, space, key)
	if err != nil {
		return nil, smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "failed to read %s/%s: %w", space, key, err)
	}
	if tuple == nil {
		return nil, nil
	}
	return tuple, nil
}

// delete(space, key)
func (p *TupleProcedures) delete(ctx context.Context, bucketID uint64, args rpc.Args) (any, error) {
	space, key, err := p.spaceAndKey(bucketID, args)
	if err != nil {
		return nil, err
	}
	if err := p.mgr.CommitWrite(ctx, bucketID, kvdb.NewTransaction().DeleteTuple(space, key)); err != nil {
		return nil, err
	}
	return nil, nil
}

// scan(space) returns every tuple of the bucket in space.
func (p *TupleProcedures) scan(ctx context.Context, bucketID uint64, args rpc.Args) (any, error) {
	var space string
	if err := args.Decode(0, &space); err != nil {
		return nil, err
	}
	rows, err := p.db.ScanBucket(ctx, space, bucketID)
	if err != nil {
		return nil, smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, "failed to scan bucket %d in %s: %w", bucketID, space, err)
	}
	if rows == nil {
		rows = []*kvdb.Tuple{}
	}
	return rows, nil
}
