package bucketmgr

import (
	"context"
	"errors"

	"github.com/pg-sharding/shardman/kvdb"
	"github.com/pg-sharding/shardman/pkg/models/buckets"
	"github.com/pg-sharding/shardman/pkg/models/smerror"
	"github.com/pg-sharding/shardman/pkg/models/topology"
	"github.com/pg-sharding/shardman/pkg/smlog"
)

// forceCreateBatch bounds the size of one bootstrap transaction.
const forceCreateBatch = 100

// Manager owns the local bucket table. Every transition is a single
// guarded kvdb transaction, so a bucket is never observed half-moved.
type Manager struct {
	db kvdb.KVDB
}

var _ buckets.BucketMgr = &Manager{}

func NewManager(db kvdb.KVDB) *Manager {
	return &Manager{db: db}
}

func storageError(err error, format string, a ...any) error {
	return smerror.Newf(smerror.SHARDMAN_STORAGE_ERROR, format+": %w", append(a, err)...)
}

// CheckState is the admission check run before any bucket-scoped request.
func (m *Manager) CheckState(ctx context.Context, cs *topology.ClusterState, id uint64, mode buckets.Mode) error {
	if cs == nil || !cs.IsMaster() {
		return smerror.New(smerror.SHARDMAN_NON_MASTER, "instance is not a master of its replicaset")
	}

	b, err := m.GetBucket(ctx, id)
	if err != nil {
		return err
	}
	if b == nil {
		return smerror.NewWrongBucket(id, "", "bucket %d is not found", id)
	}
	if b.Writable(mode) {
		return nil
	}

	return smerror.NewRedirect(id, b.Destination, "bucket %d is %s, %s is not allowed", id, b.Status, mode)
}

func (m *Manager) GetBucket(ctx context.Context, id uint64) (*buckets.Bucket, error) {
	b, err := m.db.GetBucket(ctx, id)
	if err != nil {
		return nil, storageError(err, "failed to read bucket %d", id)
	}
	return buckets.BucketFromDB(b), nil
}

func (m *Manager) ListBuckets(ctx context.Context) ([]*buckets.Bucket, error) {
	list, err := m.db.ListBuckets(ctx)
	if err != nil {
		return nil, storageError(err, "failed to list buckets")
	}
	ret := make([]*buckets.Bucket, 0, len(list))
	for _, b := range list {
		ret = append(ret, buckets.BucketFromDB(b))
	}
	return ret, nil
}

// transition replaces from with to, provided the stored record still
// equals from.
func (m *Manager) transition(ctx context.Context, from, to *buckets.Bucket) error {
	tx := kvdb.NewTransaction().
		BucketIs(buckets.BucketToDB(from)).
		PutBucket(buckets.BucketToDB(to))

	err := m.db.Commit(ctx, tx)
	switch {
	case err == nil:
		smlog.Zero.Debug().
			Uint64("bucket", from.ID).
			Str("from", string(from.Status)).
			Str("to", string(to.Status)).
			Str("destination", to.Destination).
			Msg("bucket status changed")
		return nil
	case errors.Is(err, kvdb.ErrGuardFailed):
		return smerror.NewWrongBucket(from.ID, "", "bucket %d changed concurrently, expected %s", from.ID, from.Status)
	default:
		return storageError(err, "failed to change bucket %d status", from.ID)
	}
}

// StartSending moves an ACTIVE bucket to SENDING. The check and the write
// are one atomic step, so two sends cannot both succeed.
func (m *Manager) StartSending(ctx context.Context, id uint64, destination string) (*buckets.Bucket, error) {
	b, err := m.GetBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, smerror.NewWrongBucket(id, "", "bucket %d is not found", id)
	}
	if b.Status != buckets.Active {
		return nil, smerror.NewRedirect(id, b.Destination, "bucket %d is %s, not active", id, b.Status)
	}

	sending := &buckets.Bucket{ID: id, Status: buckets.Sending, Destination: destination}
	if err := m.transition(ctx, b, sending); err != nil {
		return nil, err
	}
	return sending, nil
}

func (m *Manager) MarkSent(ctx context.Context, sending *buckets.Bucket) error {
	return m.transition(ctx, sending, &buckets.Bucket{
		ID:          sending.ID,
		Status:      buckets.Sent,
		Destination: sending.Destination,
	})
}

func (m *Manager) RollbackSending(ctx context.Context, sending *buckets.Bucket) error {
	return m.transition(ctx, sending, &buckets.Bucket{
		ID:     sending.ID,
		Status: buckets.Active,
	})
}

// Receive creates bucket id from the transferred rows. The bucket record
// passes through RECEIVING and lands ACTIVE together with every row, or
// nothing is written. An existing bucket fails with BucketAlreadyExists.
func (m *Manager) Receive(ctx context.Context, id uint64, from string, rows []*kvdb.Tuple) error {
	tx := kvdb.NewTransaction().
		BucketAbsent(id).
		PutBucket(kvdb.NewBucket(id, string(buckets.Receiving), from))
	for _, r := range rows {
		if r.BucketID != id {
			return smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "row %s/%s belongs to bucket %d, not %d", r.Space, r.Key, r.BucketID, id)
		}
		tx.PutTuple(r)
	}
	tx.PutBucket(kvdb.NewBucket(id, string(buckets.Active), ""))

	err := m.db.Commit(ctx, tx)
	switch {
	case err == nil:
		smlog.Zero.Info().
			Uint64("bucket", id).
			Str("from", from).
			Int("rows", len(rows)).
			Msg("bucket received")
		return nil
	case errors.Is(err, kvdb.ErrGuardFailed):
		return smerror.Newf(smerror.SHARDMAN_BUCKET_ALREADY_EXISTS, "bucket %d already exists", id)
	default:
		return storageError(err, "failed to receive bucket %d", id)
	}
}

// CommitWrite applies tx only if bucket id is still ACTIVE at commit time.
// Admission and commit are separate steps, so a bucket that entered SENDING
// in between fails the guard; the caller gets WrongBucket and nothing is
// written.
func (m *Manager) CommitWrite(ctx context.Context, id uint64, tx *kvdb.Transaction) error {
	tx.BucketIs(kvdb.NewBucket(id, string(buckets.Active), ""))

	err := m.db.Commit(ctx, tx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kvdb.ErrGuardFailed):
		b, gErr := m.GetBucket(ctx, id)
		if gErr != nil {
			return gErr
		}
		if b == nil {
			return smerror.NewWrongBucket(id, "", "bucket %d is not found", id)
		}
		return smerror.NewRedirect(id, b.Destination, "bucket %d is %s, write is not allowed", id, b.Status)
	default:
		return storageError(err, "failed to write to bucket %d", id)
	}
}

// ForceCreate inserts an ACTIVE bucket unconditionally.
func (m *Manager) ForceCreate(ctx context.Context, id uint64) error {
	smlog.Zero.Warn().Uint64("bucket", id).Msg("force create bucket")
	if err := m.db.PutBucket(ctx, kvdb.NewBucket(id, string(buckets.Active), "")); err != nil {
		return storageError(err, "failed to create bucket %d", id)
	}
	return nil
}

// ForceCreateRange creates ACTIVE buckets first..first+count-1 in batches.
// Batches are independent transactions.
func (m *Manager) ForceCreateRange(ctx context.Context, first uint64, count uint64) error {
	if count == 0 {
		return nil
	}
	if first+count < first {
		return smerror.Newf(smerror.SHARDMAN_INVALID_REQUEST, "bucket range %d+%d overflows", first, count)
	}

	smlog.Zero.Warn().Uint64("first", first).Uint64("count", count).Msg("force create bucket range")

	for start := first; start < first+count; start += forceCreateBatch {
		end := min(start+forceCreateBatch, first+count)
		tx := kvdb.NewTransaction()
		for id := start; id < end; id++ {
			tx.PutBucket(kvdb.NewBucket(id, string(buckets.Active), ""))
		}
		if err := m.db.Commit(ctx, tx); err != nil {
			return storageError(err, "failed to create buckets [%d, %d)", start, end)
		}
	}
	return nil
}

// ForceDrop removes a bucket record whatever its status.
func (m *Manager) ForceDrop(ctx context.Context, id uint64) error {
	smlog.Zero.Warn().Uint64("bucket", id).Msg("force drop bucket")
	if err := m.db.DeleteBucket(ctx, id); err != nil {
		return storageError(err, "failed to drop bucket %d", id)
	}
	return nil
}

func (m *Manager) Stat(ctx context.Context, id uint64) (*buckets.Bucket, error) {
	b, err := m.GetBucket(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, smerror.NewWrongBucket(id, "", "bucket %d is not found", id)
	}
	return b, nil
}

func (m *Manager) Info(ctx context.Context) (*buckets.Info, error) {
	list, err := m.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	info := &buckets.Info{}
	for _, b := range list {
		info.Add(b)
	}
	return info, nil
}
